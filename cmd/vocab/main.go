// Command vocab indexes a set of text or PDF files, one document per file,
// and prints either the resulting vocabulary or the pairwise cosine
// similarity of the documents.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"

	"gonum.org/v1/gonum/mat"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/source"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	mode := flag.String("mode", "vocab", "output: vocab or similarity")
	workers := flag.Int("workers", runtime.NumCPU(), "files read concurrently")
	stemmer := flag.String("stemmer", "", "override tokenizer stemmer (snowball, suffix, none)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: vocab [flags] path...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *stemmer != "" {
		cfg.Tokenizer.Stemmer = *stemmer
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, cfg.Tokenizer, *mode, *workers, flag.Args()); err != nil {
		slog.Error("vocab failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, tcfg config.TokenizerConfig, mode string, workers int, roots []string) error {
	if mode != "vocab" && mode != "similarity" {
		return fmt.Errorf("unknown mode %q", mode)
	}
	tok, err := tokenizer.FromConfig(tcfg)
	if err != nil {
		return fmt.Errorf("building tokenizer: %w", err)
	}
	c, err := buildCorpus(ctx, tok, workers, roots)
	if err != nil {
		return err
	}
	slog.Info("corpus built",
		"documents", c.Stats().Documents,
		"terms", c.Stats().Terms,
	)
	if mode == "similarity" {
		return printSimilarity(out, c)
	}
	return printVocabulary(out, c)
}

func buildCorpus(ctx context.Context, tok *tokenizer.Tokenizer, workers int, roots []string) (*corpus.Corpus, error) {
	var paths []string
	for _, root := range roots {
		found, err := source.List(root)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no readable documents under %v", roots)
	}
	files, err := source.ReadAll(ctx, paths, workers)
	if err != nil {
		return nil, err
	}
	c, err := corpus.New(tok)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, err := c.IndexDocument(f.Path, f.Text); err != nil {
			// The same file reached through two roots is indexed once.
			slog.Warn("skipping document", "path", f.Path, "error", err)
		}
	}
	return c, nil
}

func printVocabulary(out io.Writer, c *corpus.Corpus) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTOKEN\tDF\tIDF")
	for _, t := range c.Dictionary().Snapshot().Terms {
		idf, _ := c.Dictionary().IDF(t.Token)
		fmt.Fprintf(tw, "%d\t%s\t%.0f\t%.4f\n", t.ID, t.Token, t.DocFreq, idf)
	}
	return tw.Flush()
}

// similarityMatrix returns the cosine similarity of every pair of rows of
// the document-term matrix. Rows with zero norm compare as 0 to everything.
func similarityMatrix(c *corpus.Corpus) (*mat.Dense, []string, error) {
	ids := c.DocumentIDs()
	m, err := c.TermMatrix(ids...)
	if err != nil {
		return nil, nil, err
	}
	rows, _ := m.Dims()
	for i := range rows {
		row := m.RowView(i)
		norm := mat.Norm(row, 2)
		if norm == 0 {
			continue
		}
		scaled := mat.NewVecDense(row.Len(), nil)
		scaled.ScaleVec(1/norm, row)
		m.SetRow(i, scaled.RawVector().Data)
	}
	var sim mat.Dense
	sim.Mul(m, m.T())
	return &sim, ids, nil
}

func printSimilarity(out io.Writer, c *corpus.Corpus) error {
	sim, ids, err := similarityMatrix(c)
	if err != nil {
		return err
	}
	for i, id := range ids {
		fmt.Fprintf(out, "[%d] %s\n", i, id)
	}
	fmt.Fprintf(out, "\n%.4f\n", mat.Formatted(sim, mat.Squeeze()))
	return nil
}
