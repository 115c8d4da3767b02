// Command pagecachedemo drives a pagecache.PageTable against real files on
// disk, for manual and scripted smoke testing of pin/write/unpin/evict.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"pagecache/pkg/memalloc"
	"pagecache/pkg/pagecache"
	"pagecache/pkg/pool"
	"pagecache/pkg/swapfile"
	"pagecache/pkg/telemetry"
)

const (
	defaultPageCount     = 64
	defaultCachePageSize = 4096
)

// CLI is the full command tree, matched against os.Args by kong.
var CLI struct {
	Dir string `name:"dir" default:"." help:"Directory holding backing swap files."`

	Pin   PinCmd   `cmd:"" help:"Pin a page, faulting it in on a miss."`
	Write WriteCmd `cmd:"" help:"Write a byte pattern into a pinned page."`
	Unpin UnpinCmd `cmd:"" help:"Unpin a page."`
	Evict EvictCmd `cmd:"" help:"Force one eviction sweep."`
	Stats StatsCmd `cmd:"" help:"Report table occupancy."`
}

// demo bundles the wiring every subcommand needs. It is constructed once in
// main and passed to each Run as a binding of kctx.Run.
type demo struct {
	pool  *pool.Pool
	set   *swapfile.Set
	alloc *memalloc.Allocator
	table *pagecache.PageTable
	log   *zap.Logger
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("pagecachedemo"),
		kong.Description("Exercise the page cache against real backing files."),
		kong.UsageOnError(),
	)

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	d, err := newDemo(CLI.Dir, log)
	if err != nil {
		log.Fatal("setup failed", zap.Error(err))
	}
	defer d.close()

	if err := kctx.Run(d); err != nil {
		log.Fatal("command failed", zap.Error(err))
	}
}

func newDemo(dir string, log *zap.Logger) (*demo, error) {
	alloc := memalloc.New()
	set := swapfile.New(dir, defaultCachePageSize)
	tracer := telemetry.New(log)

	table, err := pagecache.NewPageTable(defaultPageCount, defaultCachePageSize, alloc, set, 0)
	if err != nil {
		return nil, fmt.Errorf("pagecachedemo: build table: %w", err)
	}

	p := pool.New(table, pool.Options{Tracing: tracer, Log: log})
	return &demo{pool: p, set: set, alloc: alloc, table: table, log: log}, nil
}

func (d *demo) close() {
	d.set.Close()
	d.alloc.Close()
}

func (d *demo) swapper(name string, swapperID uint32) error {
	_, err := d.set.Register(swapperID, name)
	return err
}

// PinCmd pins (faulting in if needed) the given file page.
type PinCmd struct {
	Swapper    string `arg:"" help:"Backing file name, also used as the swapper's identity."`
	SwapperID  uint32 `arg:"" help:"Nonzero swapper id."`
	FilePageID uint64 `arg:"" help:"Logical page number within the file."`
}

func (c *PinCmd) Run(d *demo) error {
	if err := d.swapper(c.Swapper, c.SwapperID); err != nil {
		return err
	}
	ref, err := d.pool.Pin(context.Background(), c.SwapperID, c.FilePageID)
	if err != nil {
		return err
	}
	fmt.Printf("pinned cache page %d\n", d.table.ToID(ref))
	return nil
}

// WriteCmd fills a pinned page's buffer with a repeating byte.
type WriteCmd struct {
	CachePageID int   `arg:"" help:"Cache page id returned by pin."`
	Byte        uint8 `arg:"" help:"Byte value to fill the page with."`
}

func (c *WriteCmd) Run(d *demo) error {
	ref := d.table.Deref(c.CachePageID)
	if !d.table.TryWriteLock(ref) {
		return fmt.Errorf("pagecachedemo: page %d is busy", c.CachePageID)
	}
	defer d.table.UnlockWrite(ref)

	addr := d.table.GetAddress(ref)
	if addr == 0 {
		return fmt.Errorf("pagecachedemo: page %d has no buffer yet", c.CachePageID)
	}
	fillPage(addr, defaultCachePageSize, c.Byte)
	fmt.Printf("wrote %d bytes of 0x%02x into cache page %d\n", defaultCachePageSize, c.Byte, c.CachePageID)
	return nil
}

// UnpinCmd releases the caller's interest in a cache page.
type UnpinCmd struct {
	CachePageID int `arg:"" help:"Cache page id returned by pin."`
}

func (c *UnpinCmd) Run(d *demo) error {
	d.pool.Unpin(d.table.Deref(c.CachePageID))
	fmt.Printf("unpinned cache page %d\n", c.CachePageID)
	return nil
}

// EvictCmd forces a single clock sweep over the whole table.
type EvictCmd struct{}

func (c *EvictCmd) Run(d *demo) error {
	sweeper := pool.NewSweeper(d.pool, 0, d.log)
	sweeper.SweepOnce()
	fmt.Println("eviction sweep complete")
	return nil
}

// StatsCmd reports how many slots are currently loaded.
type StatsCmd struct{}

func (c *StatsCmd) Run(d *demo) error {
	loaded := 0
	for i := 0; i < d.table.PageCount(); i++ {
		if d.table.IsLoaded(d.table.Deref(i)) {
			loaded++
		}
	}
	fmt.Printf("%d/%d cache pages loaded\n", loaded, d.table.PageCount())
	return nil
}
