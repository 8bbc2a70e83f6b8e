// Package sequencer coordinates many producer goroutines against a single
// consumer over a fixed, power-of-two ring of slot indices.
//
// Producers call Reserve to claim an index, fill whatever payload that index
// names (the sequencer never sees payload), then call MarkReady. The consumer
// calls Drain, which hands the longest contiguous run of ready slots to the
// Consumer callback in reservation order and returns them to the free pool.
// The last slot of each run is delivered with last=true, which is where a
// journal performs its durable flush.
//
// # Design
//
//   - Cursors: two unbounded uint64 virtual sequence numbers. next is the
//     next sequence to hand out and advances only by a producer's successful
//     compare-and-swap. freed counts sequences returned to the pool and
//     advances only inside Drain. next-freed is the number of allocated slots
//     and is always in [0, Capacity]. All arithmetic uses modular uint64
//     subtraction, so it stays correct when the counters wrap.
//
//   - Flags: one atomic ready flag per physical index (seq & mask). Exactly one
//     producer owns an index between its Reserve and the Drain that consumes
//     it, so the flag has a single writer at any time.
//
//   - Reentrancy: Drain takes an atomic busy flag with compare-and-swap and
//     releases it with defer. A Drain that finds the flag taken returns 0
//     immediately; it neither queues nor blocks.
//
//   - Waiting: Reserve on a full ring calls Drain to make room and yields the
//     processor when that did not help. It is a busy-wait with no timeout.
//
//   - Failures: an error or panic from the Consumer is logged and counted, and
//     the run continues with the next slot, including on the final slot.
//
// # Basic usage
//
//	s := sequencer.New(sequencer.Options{
//	    Capacity: 128,
//	    Consumer: func(i int, last bool) error {
//	        write(records[i])
//	        if last {
//	            return sync()
//	        }
//	        return nil
//	    },
//	})
//	i := s.Reserve()
//	records[i] = rec
//	s.MarkReady(i)
//	s.Drain()
//
// Misuse (out-of-range index, marking a slot ready twice) panics.
package sequencer
