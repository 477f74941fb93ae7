package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/SeqOne/vt/internal/genotype"
)

const defaultBatchSize = 1000

// SiteEvidence is one row of site_evidence. Ratios without a denominator
// are nil.
type SiteEvidence struct {
	Chrom    string
	Pos      int64
	Ref      string
	Alt      string
	Motif    string
	DP       int
	NSNonRef int
	MaxGQ    int
	Metrics  map[string]*float64
	Calls    []SampleCall
}

// SampleCall is one row of sample_calls.
type SampleCall struct {
	Sample string
	GT     string
	GQ     sql.NullInt64
	DP     int
	AD     [2]int
	PL     string
}

type siteRow struct {
	res     *genotype.SiteResult
	samples []string
}

type siteKey struct {
	chrom, ref, alt string
	pos             int64
}

// SetBatchSize sets how many sites are buffered before an append.
func (s *Store) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// Sink returns a genotype.ResultSink writing into s. samples names the
// calls of every result in order.
func (s *Store) Sink(samples []string) genotype.ResultSink {
	return &storeSink{s: s, samples: samples}
}

type storeSink struct {
	s       *Store
	samples []string
}

func (k *storeSink) Add(res *genotype.SiteResult) error {
	return k.s.Add(res, k.samples)
}

func (k *storeSink) Flush() error {
	return k.s.Flush()
}

// Add buffers res and writes the batch when it is full.
func (s *Store) Add(res *genotype.SiteResult, samples []string) error {
	if len(samples) != len(res.Calls) {
		return fmt.Errorf("site %s: %d calls for %d samples", res.Site, len(res.Calls), len(samples))
	}
	s.pending = append(s.pending, siteRow{res: res, samples: samples})
	if len(s.pending) >= s.batchSize {
		return s.Flush()
	}
	return nil
}

// Flush writes the buffered sites.
func (s *Store) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	rows := s.pending
	s.pending = nil
	return s.writeSiteResults(rows)
}

// writeSiteResults batch-inserts sites and their calls using the Appender
// API. A site already written by this store keeps its first row.
func (s *Store) writeSiteResults(rows []siteRow) error {
	deduped := rows[:0:0]
	for _, r := range rows {
		k := keyOf(r.res)
		if !s.written[k] {
			s.written[k] = true
			deduped = append(deduped, r)
		}
	}
	if len(deduped) == 0 {
		return nil
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	sites, err := newAppender(conn, "site_evidence")
	if err != nil {
		return err
	}
	defer sites.Close()
	calls, err := newAppender(conn, "sample_calls")
	if err != nil {
		return err
	}
	defer calls.Close()

	for _, r := range deduped {
		k := keyOf(r.res)
		args := []driver.Value{k.chrom, k.pos, k.ref, k.alt, r.res.Motif,
			int32(r.res.DP), int32(r.res.NSNonRef), int32(r.res.MaxGQ)}
		for _, m := range r.res.Metrics() {
			if v, ok := m.Ratio.Value(); ok {
				args = append(args, v)
			} else {
				args = append(args, nil)
			}
		}
		if err := sites.AppendRow(args...); err != nil {
			return fmt.Errorf("append site %s: %w", r.res.Site, err)
		}

		for i, c := range r.res.Calls {
			var gq driver.Value
			pl := "."
			if c.Called {
				gq = int32(c.GQ)
				pl = formatPL(c.PL)
			}
			if err := calls.AppendRow(k.chrom, k.pos, k.ref, k.alt, r.samples[i],
				c.Genotype(), gq, int32(c.DP), int32(c.AD[0]), int32(c.AD[1]), pl); err != nil {
				return fmt.Errorf("append call %s %s: %w", r.res.Site, r.samples[i], err)
			}
		}
	}

	if err := sites.Flush(); err != nil {
		return err
	}
	return calls.Flush()
}

func newAppender(conn *sql.Conn, table string) (*goduckdb.Appender, error) {
	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", table)
		return err
	}); err != nil {
		return nil, fmt.Errorf("create %s appender: %w", table, err)
	}
	return appender, nil
}

func keyOf(res *genotype.SiteResult) siteKey {
	return siteKey{
		chrom: res.Site.Chrom,
		pos:   int64(res.Site.Pos1),
		ref:   res.Site.Ref,
		alt:   strings.Join(res.Site.Alt, ","),
	}
}

func formatPL(pl [3]int) string {
	parts := make([]string, len(pl))
	for i, v := range pl {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// Clear removes all stored evidence.
func (s *Store) Clear() error {
	s.pending = nil
	clear(s.written)
	for _, table := range []string{"site_evidence", "sample_calls", "inputs"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

var metricColumns = []string{"bqr", "mqr", "cyr", "str", "nmr", "ior", "nm0", "nm1", "abe", "abh"}

// LookupSite returns every stored site at chrom:pos with its calls.
func (s *Store) LookupSite(chrom string, pos int64) ([]SiteEvidence, error) {
	rows, err := s.db.Query(`SELECT
		chrom, pos, ref, alt, motif, dp, ns_nref, max_gq, `+strings.Join(metricColumns, ", ")+`
		FROM site_evidence
		WHERE chrom=? AND pos=?
		ORDER BY ref, alt`, chrom, pos)
	if err != nil {
		return nil, fmt.Errorf("query site: %w", err)
	}
	defer rows.Close()

	var sites []SiteEvidence
	for rows.Next() {
		var e SiteEvidence
		metrics := make([]sql.NullFloat64, len(metricColumns))
		dest := []any{&e.Chrom, &e.Pos, &e.Ref, &e.Alt, &e.Motif, &e.DP, &e.NSNonRef, &e.MaxGQ}
		for i := range metrics {
			dest = append(dest, &metrics[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		e.Metrics = make(map[string]*float64, len(metricColumns))
		for i, col := range metricColumns {
			if metrics[i].Valid {
				v := metrics[i].Float64
				e.Metrics[strings.ToUpper(col)] = &v
			} else {
				e.Metrics[strings.ToUpper(col)] = nil
			}
		}
		sites = append(sites, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}

	for i := range sites {
		if sites[i].Calls, err = s.lookupCalls(&sites[i]); err != nil {
			return nil, err
		}
	}
	return sites, nil
}

func (s *Store) lookupCalls(e *SiteEvidence) ([]SampleCall, error) {
	rows, err := s.db.Query(`SELECT sample, gt, gq, dp, ad_ref, ad_alt, pl
		FROM sample_calls
		WHERE chrom=? AND pos=? AND ref=? AND alt=?
		ORDER BY sample`, e.Chrom, e.Pos, e.Ref, e.Alt)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var calls []SampleCall
	for rows.Next() {
		var c SampleCall
		if err := rows.Scan(&c.Sample, &c.GT, &c.GQ, &c.DP, &c.AD[0], &c.AD[1], &c.PL); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}
