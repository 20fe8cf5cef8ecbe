package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"time"

	"c3hal.dev/dmamem"
	"c3hal.dev/driver/dma"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

// copyTimeout bounds the polling of a single transfer.
const copyTimeout = 5 * time.Second

type copyResult struct {
	descriptors int
	bytes       int
}

// loopbackCopy copies src through a loopback pipe on a free channel
// and verifies the result.
func loopbackCopy(d *dma.Controller, mem *dmamem.Region, src []byte, seg int) (copyResult, error) {
	defer mem.Reset()
	cl, err := d.ReserveAny()
	if err != nil {
		return copyResult{}, err
	}
	p, err := d.NewLoopbackPipe(cl)
	if err != nil {
		cl.Release()
		return copyResult{}, err
	}
	defer p.Close()
	sbuf, err := mem.Alloc(len(src), 4)
	if err != nil {
		return copyResult{}, err
	}
	copy(sbuf.Data, src)
	dbuf, err := mem.Alloc(len(src), 4)
	if err != nil {
		return copyResult{}, err
	}
	var segs []dmamem.Buffer
	for i := 0; i < len(src); i += seg {
		segs = append(segs, sbuf.Slice(i, min(i+seg, len(src))))
	}
	tx, err := dma.NewChain(mem, segs...)
	if err != nil {
		return copyResult{}, err
	}
	rx, err := dma.NewReceiveChain(mem, dbuf)
	if err != nil {
		return copyResult{}, err
	}
	tr, err := p.Start(tx, rx)
	if err != nil {
		return copyResult{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), copyTimeout)
	defer cancel()
	if err := tr.Wait(ctx); err != nil {
		return copyResult{}, err
	}
	if err := tr.Release(); err != nil {
		return copyResult{}, err
	}
	res := copyResult{descriptors: tx.Len() + rx.Len(), bytes: rx.Transferred()}
	if res.bytes != len(src) {
		return res, fmt.Errorf("received %d bytes, sent %d", res.bytes, len(src))
	}
	if !bytes.Equal(dbuf.Data, src) {
		return res, fmt.Errorf("destination differs from source")
	}
	return res, nil
}

func copyFlags(name string, n *int, seg *int) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.IntVar(n, "n", 1000, "number of bytes to copy")
	fs.IntVar(seg, "seg", dma.MaxSegment, "bytes per transmit descriptor")
	return fs
}

func checkCopyArgs(b *backend, n, seg int) error {
	if b.mem == nil {
		return errNoMemory
	}
	if n <= 0 {
		return fmt.Errorf("invalid size %d", n)
	}
	if seg <= 0 || seg > dma.MaxSegment {
		return fmt.Errorf("invalid segment size %d", seg)
	}
	return nil
}

func copyCmd(l *logrus.Logger, b *backend, stdout io.Writer, args []string) error {
	var n, seg int
	fs := copyFlags("copy", &n, &seg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkCopyArgs(b, n, seg); err != nil {
		return err
	}
	src := make([]byte, n)
	rand.Read(src)
	start := time.Now()
	res, err := loopbackCopy(b.dmaController(), b.mem, src, seg)
	if err != nil {
		return err
	}
	l.WithFields(logrus.Fields{
		"bytes":       res.bytes,
		"descriptors": res.descriptors,
		"duration":    time.Since(start),
	}).Info("Copy complete")
	fmt.Fprintf(stdout, "copied %d bytes with %d descriptors\n", res.bytes, res.descriptors)
	return nil
}

func benchCmd(l *logrus.Logger, b *backend, stdout io.Writer, args []string) error {
	var n, seg int
	fs := copyFlags("bench", &n, &seg)
	iter := fs.Int("iter", 100, "number of copies")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkCopyArgs(b, n, seg); err != nil {
		return err
	}
	if *iter <= 0 {
		return fmt.Errorf("invalid iteration count %d", *iter)
	}
	reg := metrics.NewRegistry()
	timer := metrics.GetOrRegisterTimer("dma.copy", reg)
	throughput := metrics.GetOrRegisterMeter("dma.bytes", reg)
	failures := metrics.GetOrRegisterCounter("dma.failures", reg)
	d := b.dmaController()
	src := make([]byte, n)
	for i := 0; i < *iter; i++ {
		rand.Read(src)
		start := time.Now()
		res, err := loopbackCopy(d, b.mem, src, seg)
		timer.UpdateSince(start)
		if err != nil {
			failures.Inc(1)
			l.WithError(err).WithField("iteration", i).Error("Copy failed")
			continue
		}
		throughput.Mark(int64(res.bytes))
	}
	snap := timer.Snapshot()
	l.WithFields(logrus.Fields{
		"copies":   snap.Count(),
		"failures": failures.Count(),
	}).Info("Benchmark complete")
	fmt.Fprintf(stdout, "copies: %d failures: %d\n", snap.Count(), failures.Count())
	fmt.Fprintf(stdout, "mean: %v p99: %v\n", time.Duration(snap.Mean()), time.Duration(snap.Percentile(0.99)))
	fmt.Fprintf(stdout, "throughput: %.0f B/s\n", throughput.Snapshot().RateMean())
	if c := failures.Count(); c > 0 {
		return fmt.Errorf("%d of %d copies failed", c, *iter)
	}
	return nil
}
