package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/flaneur2020/unxip/unxip"
	"github.com/flaneur2020/unxip/unxip/logger"
	"github.com/flaneur2020/unxip/unxip/pbzx"
	"github.com/flaneur2020/unxip/unxip/storage"
	"github.com/flaneur2020/unxip/unxip/xar"
)

type cliOptions struct {
	logLevel   string
	credential string
	insecure   bool

	noProgress bool
	content    string
	cpio       string
	bufferSize int
	verify     bool

	chunks    bool
	chunkSize int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "unxip",
		Short:         "A CLI tool for unpacking Apple .xip archives",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logger.ParseLogLevel(o.logLevel)
			if err != nil {
				return err
			}
			logger.SetLogLevel(level)
			logger.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "warn", "Log level: silent, error, warn, info or debug")
	rootCmd.PersistentFlags().StringVar(&o.credential, "credential", "", "HTTP credential in format USER:PASSWORD")
	rootCmd.PersistentFlags().BoolVar(&o.insecure, "insecure", false, "Skip TLS certificate verification")

	decodeFlags := func(cmd *cobra.Command) {
		cmd.Flags().BoolVar(&o.noProgress, "no-progress", false, "Disable progress bar (shown by default on a terminal)")
		cmd.Flags().StringVar(&o.content, "content", unxip.DefaultContentPath, "XAR entry holding the pbzx stream")
		cmd.Flags().IntVar(&o.bufferSize, "buffer-size", unxip.DefaultBufferSize, "Copy buffer size in bytes")
		cmd.Flags().BoolVar(&o.verify, "verify", false, "Check XAR checksums before decoding")
	}

	// extract command
	extractCmd := &cobra.Command{
		Use:   "extract <XIP> [OUTPUT_DIR]",
		Short: "Unpack a .xip archive into a directory (default: current directory)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, o, args)
		},
	}
	decodeFlags(extractCmd)
	extractCmd.Flags().StringVar(&o.cpio, "cpio", "cpio", "cpio executable used to unpack the payload")

	// cat command
	catCmd := &cobra.Command{
		Use:   "cat <XIP>",
		Short: "Write the decoded cpio payload to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCat(cmd, o, args)
		},
	}
	decodeFlags(catCmd)

	// info command
	infoCmd := &cobra.Command{
		Use:   "info <XIP>",
		Short: "Show the XAR layout of a .xip archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, o, args)
		},
	}
	infoCmd.Flags().BoolVar(&o.chunks, "chunks", false, "Decode the payload and report pbzx chunk statistics")
	infoCmd.Flags().StringVar(&o.content, "content", unxip.DefaultContentPath, "XAR entry holding the pbzx stream")

	// verify command
	verifyCmd := &cobra.Command{
		Use:   "verify <XIP>",
		Short: "Check the TOC and entry checksums of a .xip archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, o, args)
		},
	}

	// pack command
	packCmd := &cobra.Command{
		Use:   "pack <CPIO> <OUTPUT_XIP>",
		Short: "Build a .xip archive from a cpio archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPack(cmd, o, args)
		},
	}
	packCmd.Flags().IntVar(&o.chunkSize, "chunk-size", pbzx.RawChunkSize, "Uncompressed bytes per pbzx chunk")

	rootCmd.AddCommand(extractCmd, catCmd, infoCmd, verifyCmd, packCmd)
	return rootCmd
}

func openSource(ctx context.Context, o *cliOptions, location string) (*storage.Source, error) {
	st := storage.Resolve(location, storage.Options{
		Credential: o.credential,
		Insecure:   o.insecure,
	})
	return storage.Open(ctx, st, location)
}

// progressCallback returns nil when no bar should be drawn. The bar is
// created on the first call, once the payload length is known.
func progressCallback(o *cliOptions, out io.Writer, description string) (unxip.ProgressCallback, func()) {
	if o.noProgress || !isTerminal(out) {
		return nil, func() {}
	}

	var bar *progressbar.ProgressBar
	callback := func(current, total int64) {
		if bar == nil && total > 0 {
			bar = progressbar.NewOptions64(total,
				progressbar.OptionSetWriter(out),
				progressbar.OptionSetDescription(description),
				progressbar.OptionShowBytes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionFullWidth(),
				progressbar.OptionSetRenderBlankState(true),
			)
		}
		if bar != nil {
			_ = bar.Set64(current)
		}
	}
	finish := func() {
		if bar != nil {
			_ = bar.Finish()
			fmt.Fprintln(out)
		}
	}
	return callback, finish
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func decodeOptions(o *cliOptions, progress unxip.ProgressCallback) *unxip.Options {
	return &unxip.Options{
		ContentPath: o.content,
		BufferSize:  o.bufferSize,
		Verify:      o.verify,
		Progress:    progress,
	}
}

func runExtract(cmd *cobra.Command, o *cliOptions, args []string) error {
	ctx := cmd.Context()
	outputDir := "."
	if len(args) > 1 {
		outputDir = args[1]
	}

	src, err := openSource(ctx, o, args[0])
	if err != nil {
		return err
	}

	progress, finish := progressCallback(o, cmd.ErrOrStderr(), "Extracting")
	opts := decodeOptions(o, progress)
	opts.Sink = &unxip.CpioSink{Command: o.cpio, BufferSize: o.bufferSize}

	result, err := unxip.Extract(ctx, src, outputDir, opts)
	finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Successfully extracted %s into %s (%d bytes from %d chunks)\n",
		args[0], outputDir, result.Stats.DecodedBytes, result.Stats.Chunks())
	return nil
}

func runCat(cmd *cobra.Command, o *cliOptions, args []string) error {
	ctx := cmd.Context()
	src, err := openSource(ctx, o, args[0])
	if err != nil {
		return err
	}

	progress, finish := progressCallback(o, cmd.ErrOrStderr(), "Decoding")
	result, err := unxip.Decode(ctx, src, cmd.OutOrStdout(), decodeOptions(o, progress))
	finish()
	if err != nil {
		return err
	}
	logger.Info("wrote %d bytes, digest %s", result.Stats.DecodedBytes, result.Digest)
	return nil
}

func runInfo(cmd *cobra.Command, o *cliOptions, args []string) error {
	ctx := cmd.Context()
	src, err := openSource(ctx, o, args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	arc, err := xar.Open(src, src.Size())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	h := arc.Header
	fmt.Fprintf(out, "Archive:    %s (%d bytes)\n", args[0], src.Size())
	fmt.Fprintf(out, "Header:     %d bytes, version %d, checksum %s\n", h.Size, h.Version, h.Style())
	fmt.Fprintf(out, "TOC:        %d bytes compressed, %d bytes XML\n", h.TOCCompressed, h.TOCUncompressed)
	fmt.Fprintf(out, "Heap start: %d\n", arc.HeapStart())
	fmt.Fprintln(out, "Entries:")
	err = arc.Walk(func(p string, f *xar.File) error {
		if f.IsDir() || f.Data == nil {
			fmt.Fprintf(out, "  %s/\n", p)
			return nil
		}
		fmt.Fprintf(out, "  %s (offset: %d, length: %d, checksum: %s)\n",
			p, f.Offset(), f.Length(), f.Data.ArchivedChecksum.Style)
		return nil
	})
	if err != nil {
		return err
	}

	if !o.chunks {
		return nil
	}

	// Decode reads through its own Source so the one above stays usable.
	payloadSrc, err := openSource(ctx, o, args[0])
	if err != nil {
		return err
	}
	result, err := unxip.Decode(ctx, payloadSrc, io.Discard, &unxip.Options{ContentPath: o.content})
	if err != nil {
		return err
	}
	s := result.Stats
	fmt.Fprintf(out, "Chunks:     %d (%d xz, %d raw)\n", s.Chunks(), s.CompressedChunks, s.RawChunks)
	fmt.Fprintf(out, "Payload:    %d bytes compressed, %d bytes decoded\n", s.ConsumedBytes, s.DecodedBytes)
	fmt.Fprintf(out, "Digest:     %s\n", result.Digest)
	return nil
}

func runVerify(cmd *cobra.Command, o *cliOptions, args []string) error {
	ctx := cmd.Context()
	src, err := openSource(ctx, o, args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	arc, err := xar.Open(src, src.Size())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := arc.VerifyTOC(); err != nil {
		return err
	}
	fmt.Fprintf(out, "ok  toc (%s)\n", arc.Header.Style())

	verified := 0
	err = arc.Walk(func(p string, f *xar.File) error {
		if f.IsDir() || f.Data == nil {
			return nil
		}
		if err := arc.Verify(f); err != nil {
			return err
		}
		fmt.Fprintf(out, "ok  %s (%s)\n", p, f.Data.ArchivedChecksum.Style)
		verified++
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Successfully verified %s (%d entries)\n", args[0], verified)
	return nil
}

func runPack(cmd *cobra.Command, o *cliOptions, args []string) error {
	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}

	opts := &unxip.PackOptions{ChunkSize: o.chunkSize}
	if err := unxip.Pack(cmd.Context(), in, out, opts); err != nil {
		out.Close()
		os.Remove(args[1])
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Successfully packed %s into %s\n", args[0], args[1])
	return nil
}
