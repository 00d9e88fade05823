// Load generator for replaying applicant profiles against Lendguard.
//
// Usage:
//   go run ./cmd/loadgen -csv /path/to/applicants.csv -url http://localhost:8080 -operator loadgen
//
// This tool:
//   1. Reads applicant profiles from a CSV file (header row required)
//   2. Sends each profile to POST /evaluate
//   3. Compares the decision with the optional "expected" column (approved/rejected)
//   4. Reports approval rate, agreement with the labels, latency and throughput
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// columns maps CSV headers onto request fields.
var columns = map[string]string{
	"name":             "name",
	"id":               "id",
	"phone":            "phone",
	"address":          "address",
	"loan_amount":      "loanAmount",
	"loan_term":        "loanTerm",
	"loan_purpose":     "loanPurpose",
	"credit_score":     "creditScore",
	"overdue_count":    "overdueCount",
	"max_overdue_days": "maxOverdueDays",
	"debt_ratio":       "debtRatio",
	"has_mortgage":     "hasMortgage",
	"has_car_loan":     "hasCarLoan",
}

// Applicant is one CSV row.
type Applicant struct {
	Fields   map[string]string
	Expected string // "approved", "rejected" or empty
}

// EvaluateResponse is the subset of the Lendguard response used here.
type EvaluateResponse struct {
	EvaluationID string `json:"evaluationId"`
	Approved     bool   `json:"approved"`
	Score        int    `json:"score"`
	RuleResults  []struct {
		RuleName string `json:"ruleName"`
		Penalty  int    `json:"penalty"`
	} `json:"ruleResults"`
}

// Stats tracks run results
type Stats struct {
	TotalProcessed int64
	TotalApproved  int64
	TotalRejected  int64
	TotalErrors    int64

	Labelled  int64
	Agreement int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (s *Stats) observe(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func (s *Stats) percentile(p float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) == 0 {
		return 0
	}
	sorted := slices.Clone(s.latencies)
	slices.Sort(sorted)
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func main() {
	csvPath := flag.String("csv", "", "Path to applicant CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Lendguard base URL")
	operator := flag.String("operator", "loadgen", "Operator sent in the X-Operator header")
	token := flag.String("token", "", "Operator bearer token (overrides -operator)")
	limit := flag.Int("limit", 10000, "Maximum applicants to send (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each decision")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: loadgen -csv /path/to/applicants.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("LENDGUARD LOAD GENERATOR")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("URL:         %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Lendguard not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}
	fmt.Println("Lendguard is healthy")

	applicants, err := readApplicants(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d applicants\n", len(applicants))

	c := &client{
		http:     &http.Client{Timeout: 10 * time.Second},
		baseURL:  *baseURL,
		operator: *operator,
		token:    *token,
	}

	fmt.Printf("\nRunning with %d workers...\n", *workers)
	startTime := time.Now()
	stats := run(context.Background(), c, applicants, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(stats, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readApplicants(path string, limit int) ([]Applicant, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, col := range header {
		header[i] = strings.ToLower(strings.TrimSpace(col))
	}

	var applicants []Applicant
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		a := Applicant{Fields: make(map[string]string)}
		for i, col := range header {
			if i >= len(record) {
				break
			}
			value := strings.TrimSpace(record[i])
			if col == "expected" {
				a.Expected = strings.ToLower(value)
				continue
			}
			if field, ok := columns[col]; ok && value != "" {
				a.Fields[field] = value
			}
		}
		applicants = append(applicants, a)

		if limit > 0 && len(applicants) >= limit {
			break
		}
	}

	return applicants, nil
}

func run(ctx context.Context, c *client, applicants []Applicant, workers int, verbose bool) *Stats {
	stats := &Stats{}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, a := range applicants {
		a := a
		g.Go(func() error {
			start := time.Now()
			result, err := c.evaluate(ctx, a)
			elapsed := time.Since(start)

			atomic.AddInt64(&stats.TotalProcessed, 1)
			stats.observe(elapsed)

			if err != nil {
				atomic.AddInt64(&stats.TotalErrors, 1)
				if verbose {
					fmt.Printf("ERROR: %s -> %v\n", a.Fields["id"], err)
				}
				return nil
			}

			if result.Approved {
				atomic.AddInt64(&stats.TotalApproved, 1)
			} else {
				atomic.AddInt64(&stats.TotalRejected, 1)
			}

			mark := " "
			if a.Expected != "" {
				atomic.AddInt64(&stats.Labelled, 1)
				if (a.Expected == "approved") == result.Approved {
					atomic.AddInt64(&stats.Agreement, 1)
					mark = "+"
				} else {
					mark = "x"
				}
			}

			if verbose {
				fmt.Printf("%s %-20s | score %4d | approved %-5v | rules %d | %v\n",
					mark, a.Fields["id"], result.Score, result.Approved, len(result.RuleResults),
					elapsed.Round(time.Microsecond))
			}
			return nil
		})
	}

	// Workers never return errors; failures are counted instead.
	_ = g.Wait()
	return stats
}

type client struct {
	http     *http.Client
	baseURL  string
	operator string
	token    string
}

func (c *client) evaluate(ctx context.Context, a Applicant) (*EvaluateResponse, error) {
	body, err := json.Marshal(a.Fields)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else {
		req.Header.Set("X-Operator", c.operator)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(s *Stats, duration time.Duration) {
	fmt.Println("\nRESULTS")

	fmt.Printf("\nDECISIONS\n")
	fmt.Printf("   Total Processed:  %d\n", s.TotalProcessed)
	fmt.Printf("   Approved:         %d\n", s.TotalApproved)
	fmt.Printf("   Rejected:         %d\n", s.TotalRejected)
	fmt.Printf("   Errors:           %d\n", s.TotalErrors)

	decided := s.TotalApproved + s.TotalRejected
	if decided > 0 {
		fmt.Printf("   Approval Rate:    %.2f%%\n", 100*float64(s.TotalApproved)/float64(decided))
	}
	if s.Labelled > 0 {
		fmt.Printf("   Label Agreement:  %d / %d (%.2f%%)\n",
			s.Agreement, s.Labelled, 100*float64(s.Agreement)/float64(s.Labelled))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if s.TotalProcessed > 0 {
		fmt.Printf("   p50 Latency:      %v\n", s.percentile(0.50).Round(time.Microsecond))
		fmt.Printf("   p95 Latency:      %v\n", s.percentile(0.95).Round(time.Microsecond))
		fmt.Printf("   p99 Latency:      %v\n", s.percentile(0.99).Round(time.Microsecond))
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(s.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}
