package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/snaplog/snaplog/internal/codec"
	"github.com/snaplog/snaplog/internal/storage"
)

var (
	format      string
	compression string
	field       string
)

// rootCmd rewrites one entry of a bolt-backed log behind the log's back so
// that `snaplog verify` has something to find.
var rootCmd = &cobra.Command{
	Use:   "tamper-boltdb <boltdb-path> <index>",
	Short: "Corrupt one entry of a snaplog bolt store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid index %q: %w", args[1], err)
		}
		return tamper(cmd.Context(), args[0], index)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&format, "format", codec.FormatCBOR, "codec format the log was written with")
	rootCmd.Flags().StringVar(&compression, "compression", "none", "codec compression the log was written with")
	rootCmd.Flags().StringVar(&field, "field", "previous", "field to corrupt: previous | index | next")
}

func tamper(ctx context.Context, path string, index uint64) error {
	c, err := codec.New(format, compression)
	if err != nil {
		return err
	}

	fmt.Printf("Opening BoltDB: %s\n", path)
	store, err := storage.NewBoltStore(path)
	if err != nil {
		return fmt.Errorf("failed to open BoltDB: %w", err)
	}
	defer store.Close()

	raw, err := store.Get(ctx, []byte(strconv.FormatUint(index, 10)))
	if err != nil {
		return fmt.Errorf("no index record for %d: %w", index, err)
	}
	h, err := c.UnmarshalString(raw)
	if err != nil {
		return fmt.Errorf("failed to decode index record: %w", err)
	}

	data, err := store.Get(ctx, []byte(h))
	if err != nil {
		return fmt.Errorf("failed to read entry %s: %w", h, err)
	}
	r, err := c.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("failed to decode entry %s: %w", h, err)
	}
	fmt.Printf("Found entry %d: %s\n", r.Index, r.Hash)

	switch field {
	case "previous":
		// Any well-formed identifier that is not the real predecessor.
		r.Previous = codec.StringPtr(flip(r.Hash))
	case "next":
		r.Next = codec.StringPtr(flip(r.Hash))
	case "index":
		r.Index += 1000
	default:
		return fmt.Errorf("unknown field %q", field)
	}

	corrupted, err := c.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode corrupted entry: %w", err)
	}
	if err := store.Put(ctx, []byte(h), corrupted); err != nil {
		return fmt.Errorf("failed to save corrupted entry: %w", err)
	}

	fmt.Printf("Corrupted %s of entry %d\n", field, index)
	return nil
}

func flip(h string) string {
	if h == "" {
		return "a"
	}
	if h[0] == 'a' {
		return "b" + h[1:]
	}
	return "a" + h[1:]
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
