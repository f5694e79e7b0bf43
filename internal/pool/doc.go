/*
Package pool holds the building blocks shared by the coordinator and its workers.

# Overview

A run wires three objects together:

  - StopSignal: a one-way flag every participant observes
  - Channel: a bounded multi-producer, single-consumer queue of Samples
  - Worker: the sampling loop that feeds the channel until the signal is set

Both Channel operations take a timeout. A send against a full channel gives up
after its timeout and the sample is dropped; a receive against an empty channel
returns false after its timeout. Nothing in this package blocks indefinitely.

# Usage

	stop := pool.NewStopSignal()
	ch := pool.NewChannel(pool.DefaultCapacity)

	w := pool.NewWorker(0, time.Second)
	go w.Run(stop, ch)

	if s, ok := ch.Receive(500 * time.Millisecond); ok {
		fmt.Println(s)
	}
	stop.Set()

# Wire Format

Samples cross process boundaries as one JSON object per line, see Encoder and
Decoder.
*/
package pool
