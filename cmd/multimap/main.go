// Command multimap provides stats|import|export|optimize subcommands
// over an on-disk Map, one flag.FlagSet per subcommand.
package main

import (
	"flag"
	"fmt"
	"os"

	multimap "github.com/multimap-io/multimap-go"
	"github.com/multimap-io/multimap-go/internal/codec/base64"
)

const usage = `multimap - embeddable 1-to-N key-value store CLI

Usage:
  multimap stats    [--quiet] <map_dir>
  multimap import   [--create] [--bs N] [--nparts N] [--zstd] <map_dir> <path>
  multimap export   [--zstd] <map_dir> <path>
  multimap optimize [--bs N] [--nparts N] <map_dir> <output_dir>

Flags must come before the positional arguments; anything after the
first positional argument is not parsed as a flag.

Exit status is 0 on success, non-zero on any failure (diagnostic on stderr).
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "stats":
		err = runStats(os.Args[2:])
	case "import":
		err = runImport(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "optimize":
		err = runOptimize(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "multimap: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "multimap: %v\n", err)
		os.Exit(1)
	}
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	quiet := fs.Bool("quiet", false, "suppress informational logging")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: multimap stats [--quiet] <map_dir>")
	}

	m, err := multimap.Open(fs.Arg(0), multimap.Options{ReadOnly: true, Quiet: *quiet})
	if err != nil {
		return err
	}
	defer m.Close()

	s := m.TotalStats()
	fmt.Printf("block_size:          %d\n", s.BlockSize)
	fmt.Printf("num_blocks:          %d\n", s.NumBlocks)
	fmt.Printf("num_keys:            %d\n", s.NumKeys)
	fmt.Printf("num_values_added:    %d\n", s.NumValuesAdded)
	fmt.Printf("num_values_removed:  %d\n", s.NumValuesRemoved)
	fmt.Printf("num_values_valid:    %d\n", s.NumValuesValid())
	fmt.Printf("key_size min/max/avg: %d/%d/%d\n", s.KeySizeMin, s.KeySizeMax, s.KeySizeAvg)
	fmt.Printf("list_size min/max/avg: %d/%d/%d\n", s.ListSizeMin, s.ListSizeMax, s.ListSizeAvg)
	return nil
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	create := fs.Bool("create", false, "create the map if it does not exist")
	bs := fs.Int("bs", multimap.DefaultBlockSize, "block size for a newly created map")
	nparts := fs.Int("nparts", multimap.DefaultNumPartitions, "partition count for a newly created map")
	useZstd := fs.Bool("zstd", false, "input is zstd-compressed")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: multimap import [--create] [--bs N] [--nparts N] [--zstd] <map_dir> <path>")
	}

	m, err := multimap.Open(fs.Arg(0), multimap.Options{
		BlockSize: *bs, NumPartitions: *nparts, CreateIfMissing: *create,
	})
	if err != nil {
		return err
	}
	defer m.Close()

	f, err := os.Open(fs.Arg(1))
	if err != nil {
		return err
	}
	defer f.Close()

	if *useZstd {
		return base64.ImportZstd(m, f)
	}
	return base64.Import(m, f)
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	useZstd := fs.Bool("zstd", false, "compress the output with zstd")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: multimap export [--zstd] <map_dir> <path>")
	}

	m, err := multimap.Open(fs.Arg(0), multimap.Options{ReadOnly: true})
	if err != nil {
		return err
	}
	defer m.Close()

	f, err := os.Create(fs.Arg(1))
	if err != nil {
		return err
	}
	defer f.Close()

	if *useZstd {
		return base64.ExportZstd(m, f)
	}
	return base64.Export(m, f)
}

func runOptimize(args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	bs := fs.Int("bs", multimap.DefaultBlockSize, "block size for the optimized copy")
	nparts := fs.Int("nparts", multimap.DefaultNumPartitions, "partition count for the optimized copy")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: multimap optimize [--bs N] [--nparts N] <map_dir> <output_dir>")
	}

	return multimap.Optimize(fs.Arg(0), fs.Arg(1), multimap.Options{BlockSize: *bs, NumPartitions: *nparts})
}
