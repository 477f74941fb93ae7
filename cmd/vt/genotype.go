package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SeqOne/vt/internal/duckdb"
	"github.com/SeqOne/vt/internal/genome"
	"github.com/SeqOne/vt/internal/genotype"
	"github.com/SeqOne/vt/internal/normalize"
	"github.com/SeqOne/vt/internal/output"
	"github.com/SeqOne/vt/internal/pedigree"
	"github.com/SeqOne/vt/internal/reference"
	"github.com/SeqOne/vt/internal/vcf"
)

func newGenotypeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genotype [flags] <sites.vcf> <in.bam>...",
		Short: "Genotype variant sites from aligned reads",
		Long: `Genotypes the first alternate allele of every site for each BAM file
(one sample per file, named by the SM of its first read group). Sample
columns are replaced with GT:PL:AD:DP:GQ and the site evidence metrics are
added to INFO.

With -r, indel sites are left-aligned before reads are matched against
them. Records are written with their input alleles.`,
		Example: `  vt genotype sites.vcf child.bam mother.bam father.bam
  vt genotype -r hs37d5.fa --summary evidence.tsv --db evidence.duckdb sites.vcf.gz *.bam`,
		Args: minArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd, "genotype", "output", "reference", "intervals", "interval-file",
				"strict-intervals", "min-mapq", "contamination", "pedigree", "summary", "db")
			return runGenotype(args[0], args[1:])
		},
	}

	cmd.Flags().StringP("output", "o", "-", "Output VCF, .gz for BGZF ('-' for stdout)")
	cmd.Flags().StringP("reference", "r", "", "Reference FASTA used to left-align indel sites")
	cmd.Flags().StringP("intervals", "i", "", "Intervals, e.g. 20:1000-2000,X")
	cmd.Flags().StringP("interval-file", "I", "", "File with one interval per line")
	cmd.Flags().Bool("strict-intervals", false, "Drop records outside the intervals when the input has no index")
	cmd.Flags().Int("min-mapq", 20, "Minimum mapping quality of a read")
	cmd.Flags().Float64("contamination", 0, "Expected fraction of reads from another individual")
	cmd.Flags().String("pedigree", "", "PED file; samples it does not list are ignored")
	cmd.Flags().String("summary", "", "Write a per-site evidence table")
	cmd.Flags().String("db", "", "Store site evidence in this DuckDB database")

	return cmd
}

func runGenotype(sitesPath string, bamPaths []string) error {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	const prefix = "genotype"
	contamination := viper.GetFloat64(prefix + ".contamination")
	if contamination < 0 || contamination >= 1 {
		return usagef("contamination must be in [0, 1), got %g", contamination)
	}

	intervals, err := genome.Collect(setting(prefix, "interval-file"), setting(prefix, "intervals"))
	if err != nil {
		return &usageError{err: err}
	}

	src, err := genotype.OpenBAMs(bamPaths, viper.GetInt(prefix+".min-mapq"))
	if err != nil {
		return err
	}
	defer src.Close()
	src.SetLogger(logger)

	if pedPath := viper.GetString(prefix + ".pedigree"); pedPath != "" {
		ped, err := pedigree.Load(pedPath)
		if err != nil {
			return err
		}
		if dropped := src.Restrict(ped.Contains); len(dropped) > 0 {
			logger.Warn("samples not in pedigree ignored", zap.Strings("samples", dropped))
		}
		if len(src.Samples()) == 0 {
			return fmt.Errorf("no BAM sample is listed in %s", pedPath)
		}
	}

	opts := genotype.Options{Contamination: contamination}
	if refPath := setting(prefix, "reference"); refPath != "" {
		ref, err := reference.Open(refPath)
		if err != nil {
			return err
		}
		defer closeReference(ref)
		opts.Normalizer = normalize.NewManipulator(ref)
	}

	reader, err := vcf.Open(sitesPath, intervals,
		vcf.WithLogger(logger),
		vcf.WithStrictIntervals(viper.GetBool(prefix+".strict-intervals")))
	if err != nil {
		return err
	}
	defer reader.Close()

	g := genotype.NewGenotyper(src, opts)
	g.SetLogger(logger)

	if path := viper.GetString(prefix + ".summary"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create summary: %w", err)
		}
		defer f.Close()
		g.AddSink(output.NewSummaryWriter(f))
	}

	if path := viper.GetString(prefix + ".db"); path != "" {
		store, err := openEvidenceStore(path, append([]string{sitesPath}, bamPaths...), logger)
		if err != nil {
			return err
		}
		defer store.Close()
		g.AddSink(store.Sink(src.Samples()))
	}

	header := reader.Header().Clone()
	g.PrepareHeader(header)
	header.AddMeta(fmt.Sprintf("##vt_genotypeCommand=<Version=%s,Input=%s,BAMs=\"%s\">",
		version, sitesPath, strings.Join(bamPaths, " ")))

	writer, err := output.CreateVCF(setting(prefix, "output"), header)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := writer.WriteHeader(); err != nil {
		writer.Close()
		return fmt.Errorf("write header: %w", err)
	}

	_, runErr := g.Run(reader, writer)
	closeErr := writer.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

// openEvidenceStore opens the DuckDB store, replaces the evidence of any
// earlier run and records the fingerprints of this run's inputs.
func openEvidenceStore(path string, inputs []string, logger *zap.Logger) (*duckdb.Store, error) {
	store, err := duckdb.Open(path)
	if err != nil {
		return nil, err
	}

	var fps []duckdb.FileFingerprint
	for _, p := range inputs {
		fp, err := duckdb.StatFile(p)
		if err != nil {
			store.Close()
			return nil, err
		}
		fps = append(fps, fp)
	}

	previous, err := store.Inputs()
	if err != nil {
		store.Close()
		return nil, err
	}
	if len(previous) > 0 && !sameInputs(previous, fps) {
		logger.Info("replacing evidence from other inputs", zap.String("db", path))
	}
	if err := store.Clear(); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.RecordInputs(fps...); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func sameInputs(previous, current []duckdb.FileFingerprint) bool {
	if len(previous) != len(current) {
		return false
	}
	byPath := make(map[string]duckdb.FileFingerprint, len(previous))
	for _, fp := range previous {
		byPath[fp.Path] = fp
	}
	for _, fp := range current {
		old, ok := byPath[fp.Path]
		if !ok || old.Size != fp.Size || !old.ModTime.Equal(fp.ModTime) {
			return false
		}
	}
	return true
}
