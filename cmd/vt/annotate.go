package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SeqOne/vt/internal/annotate"
	"github.com/SeqOne/vt/internal/genome"
	"github.com/SeqOne/vt/internal/normalize"
	"github.com/SeqOne/vt/internal/output"
	"github.com/SeqOne/vt/internal/reference"
	"github.com/SeqOne/vt/internal/vcf"
	"github.com/SeqOne/vt/internal/vntr"
)

// addInputFlags registers the flags shared by commands reading a VCF
// against a reference.
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "-", "Output VCF, .gz for BGZF ('-' for stdout)")
	cmd.Flags().StringP("reference", "r", "", "Reference FASTA (required)")
	cmd.Flags().StringP("intervals", "i", "", "Intervals, e.g. 20:1000-2000,X")
	cmd.Flags().StringP("interval-file", "I", "", "File with one interval per line")
	cmd.Flags().Bool("strict-intervals", false, "Drop records outside the intervals when the input has no index")
}

// bindFlags binds the named flags of cmd under prefix so that config file
// values act as defaults.
func bindFlags(cmd *cobra.Command, prefix string, names ...string) {
	for _, name := range names {
		_ = viper.BindPFlag(prefix+"."+name, cmd.Flags().Lookup(name))
	}
}

// setting returns prefix.name, falling back to the top-level name.
func setting(prefix, name string) string {
	if v := viper.GetString(prefix + "." + name); v != "" {
		return v
	}
	return viper.GetString(name)
}

func newAnnotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotate-indels [flags] <in.vcf>",
		Short: "Normalize indels and annotate their repeat tracts",
		Long: `Left-aligns and trims every indel, keeping the original encoding in
OLD_VARIANT, then describes the tandem repeat it falls in with the MOTIF, RU,
RL, REF, REFPOS, SCORE and TR INFO fields.

Repeat tract modes:
  e  exact      stop at the first base that breaks the motif
  f  fuzzy      step over isolated mismatches
  p  penalized  score matches against mismatches, see --penalty
  x  integrated exact tract, extended by the fuzzy one when pure enough (default)`,
		Example: `  vt annotate-indels -r hs37d5.fa in.vcf
  vt annotate-indels -r hs37d5.fa -m e -i 20:1000000-2000000 -o out.vcf.gz in.vcf.gz`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd, "annotate", "output", "reference", "intervals", "interval-file",
				"strict-intervals", "mode", "penalty", "override-tags", "vntr-record", "threads", "sort-window")
			return runAnnotate(args[0], "annotate", false)
		},
	}

	addInputFlags(cmd)
	cmd.Flags().StringP("mode", "m", "x", "Repeat tract mode: e, f, p or x")
	cmd.Flags().Float64P("penalty", "p", 0, "Extra mismatch penalty for mode p")
	cmd.Flags().BoolP("override-tags", "x", false, "Replace existing INFO definitions instead of renaming new ones")
	cmd.Flags().BoolP("vntr-record", "v", false, "Add a <VNTR> record after each annotated indel")
	cmd.Flags().Int("threads", 0, "Annotation workers (0 = all CPUs, 1 = sequential)")
	cmd.Flags().Int("sort-window", 0, "Re-sort records moved left by normalization within this many bases")

	return cmd
}

func newNormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize [flags] <in.vcf>",
		Short: "Left-align and trim indels",
		Long: `Left-aligns and trims every indel against the reference, keeping the
original encoding in OLD_VARIANT. Other records pass through unchanged.`,
		Example: `  vt normalize -r hs37d5.fa -o out.vcf in.vcf`,
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd, "normalize", "output", "reference", "intervals", "interval-file",
				"strict-intervals", "threads", "sort-window")
			return runAnnotate(args[0], "normalize", true)
		},
	}

	addInputFlags(cmd)
	cmd.Flags().Int("threads", 0, "Workers (0 = all CPUs, 1 = sequential)")
	cmd.Flags().Int("sort-window", 0, "Re-sort records moved left by normalization within this many bases")

	return cmd
}

// openInputs resolves the reference, the intervals and the VCF reader of a
// command whose settings live under prefix.
func openInputs(path, prefix string, logger *zap.Logger) (reference.Sequencer, *vcf.OrderedReader, error) {
	refPath := setting(prefix, "reference")
	if refPath == "" {
		return nil, nil, usagef("a reference FASTA is required (-r)")
	}

	intervals, err := genome.Collect(setting(prefix, "interval-file"), setting(prefix, "intervals"))
	if err != nil {
		return nil, nil, &usageError{err: err}
	}

	ref, err := reference.Open(refPath)
	if err != nil {
		return nil, nil, err
	}

	reader, err := vcf.Open(path, intervals,
		vcf.WithLogger(logger),
		vcf.WithStrictIntervals(viper.GetBool(prefix+".strict-intervals")))
	if err != nil {
		closeReference(ref)
		return nil, nil, err
	}
	logger.Debug("input opened",
		zap.String("path", path),
		zap.String("mode", reader.Mode().String()),
		zap.Int("intervals", len(intervals)))
	return ref, reader, nil
}

func closeReference(ref reference.Sequencer) {
	if c, ok := ref.(io.Closer); ok {
		c.Close()
	}
}

func runAnnotate(path, prefix string, normalizeOnly bool) error {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	var mode vntr.Mode
	if !normalizeOnly {
		var err error
		if mode, err = vntr.ParseMode(viper.GetString(prefix + ".mode")); err != nil {
			return err
		}
	}

	ref, reader, err := openInputs(path, prefix, logger)
	if err != nil {
		return err
	}
	defer closeReference(ref)
	defer reader.Close()

	manip := normalize.NewManipulator(ref)
	var repeats *vntr.Annotator
	if !normalizeOnly {
		repeats = vntr.NewAnnotator(manip, mode)
		repeats.SetPenalty(viper.GetFloat64(prefix + ".penalty"))
		repeats.SetLogger(logger)
	}

	ann := annotate.NewAnnotator(manip, repeats, annotate.Options{
		Workers:       viper.GetInt(prefix + ".threads"),
		NormalizeOnly: normalizeOnly,
		AddVNTRRecord: viper.GetBool(prefix + ".vntr-record"),
	})
	ann.SetLogger(logger)

	header := reader.Header().Clone()
	ann.PrepareHeader(header, viper.GetBool(prefix+".override-tags"))
	header.AddMeta(commandLineMeta(prefix, path))

	writer, err := output.CreateVCF(setting(prefix, "output"), header)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	writer.SetSortWindow(viper.GetInt(prefix + ".sort-window"))
	if err := writer.WriteHeader(); err != nil {
		writer.Close()
		return fmt.Errorf("write header: %w", err)
	}

	_, runErr := ann.AnnotateAll(reader, writer)
	closeErr := writer.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

// commandLineMeta records the invocation in the output header.
func commandLineMeta(command, input string) string {
	var opts []string
	for _, key := range []string{"reference", "intervals", "interval-file", "mode", "penalty"} {
		if v := viper.GetString(command + "." + key); v != "" && v != "0" {
			opts = append(opts, key+"="+v)
		}
	}
	return fmt.Sprintf("##vt_%sCommand=<Version=%s,Input=%s,Options=\"%s\">",
		strings.ReplaceAll(command, "-", "_"), version, input, strings.Join(opts, " "))
}
