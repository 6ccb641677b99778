// Load generator for the healthscore service.
//
// Usage:
//
//	go run ./cmd/loadgen -url http://localhost:8080 -n 5000 -accounts 200
//	go run ./cmd/loadgen -csv evaluations.csv
//
// Each submission is also scored locally and the server's classification is
// compared against it. The CSV form has an account_id column plus one column
// per question (q1..q10); empty cells are unanswered questions.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/questionnaire"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/scoring"
)

// Submission is one questionnaire to send.
type Submission struct {
	AccountID string
	Responses domain.ResponseSet
}

type evaluationRequest struct {
	Responses map[string]float64 `json:"responses"`
}

type evaluationResponse struct {
	TotalScore     int                   `json:"totalScore"`
	Classification domain.Classification `json:"classification"`
}

// Metrics tracks load results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	Mismatches     int64

	ProcessingTimeMs int64

	mu      sync.Mutex
	byClass map[domain.Classification]int64
}

func (m *Metrics) record(c domain.Classification) {
	m.mu.Lock()
	m.byClass[c]++
	m.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "healthscore base URL")
	csvPath := flag.String("csv", "", "CSV file of submissions (generated when empty)")
	n := flag.Int("n", 1000, "Number of generated submissions")
	accounts := flag.Int("accounts", 100, "Number of distinct generated accounts")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	evaluator := flag.String("evaluator", "loadgen", "X-Evaluator header value")
	token := flag.String("token", "", "Bearer token, when the service requires JWT")
	seed := flag.Int64("seed", 1, "Random seed for generated submissions")
	verbose := flag.Bool("verbose", false, "Print each result")
	flag.Parse()

	catalog := questionnaire.Default()
	scorer := scoring.NewScorer(catalog)

	fmt.Printf("URL:      %s\n", *baseURL)
	fmt.Printf("Workers:  %d\n", *workers)

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: healthscore not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}
	fmt.Println("✓ healthscore is healthy")

	var subs []Submission
	var err error
	if *csvPath != "" {
		subs, err = readCSV(*csvPath)
		if err != nil {
			fmt.Printf("ERROR: failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		subs = generate(catalog, *n, *accounts, rand.New(rand.NewSource(*seed)))
	}
	fmt.Printf("✓ %d submissions ready\n", len(subs))

	client := &client{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   *baseURL,
		evaluator: *evaluator,
		token:     *token,
	}

	start := time.Now()
	metrics := run(subs, client, scorer, *workers, *verbose)
	printResults(metrics, time.Since(start))
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

// generate answers every question with one of its options, skipping some
// questions at random.
func generate(catalog *questionnaire.Catalog, n, accounts int, rng *rand.Rand) []Submission {
	if accounts <= 0 {
		accounts = 1
	}
	questions := catalog.ListQuestions()
	subs := make([]Submission, 0, n)

	for i := 0; i < n; i++ {
		// bias each account towards a health level so all bands show up
		acct := i % accounts
		bias := float64(acct%5) / 4

		rs := make(domain.ResponseSet, len(questions))
		for _, q := range questions {
			if rng.Float64() < 0.1 {
				continue
			}
			idx := int(bias*float64(len(q.Options)-1) + rng.NormFloat64())
			if idx < 0 {
				idx = 0
			}
			if idx >= len(q.Options) {
				idx = len(q.Options) - 1
			}
			rs[q.ID] = q.Options[idx].Value
		}
		if len(rs) == 0 {
			rs[questions[0].ID] = questions[0].Options[0].Value
		}

		subs = append(subs, Submission{
			AccountID: fmt.Sprintf("acct-%04d", acct),
			Responses: rs,
		})
	}
	return subs
}

func readCSV(path string) ([]Submission, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	accountCol := -1
	questionCols := make(map[int]int)
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		if col == "account_id" {
			accountCol = i
			continue
		}
		if id, err := domain.ParseResponseKey(col); err == nil {
			questionCols[i] = id
		}
	}
	if accountCol < 0 {
		return nil, fmt.Errorf("missing account_id column")
	}

	var subs []Submission
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rs := make(domain.ResponseSet)
		for col, id := range questionCols {
			cell := strings.TrimSpace(record[col])
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: q%d: %w", line, id, err)
			}
			rs[id] = v
		}
		subs = append(subs, Submission{AccountID: record[accountCol], Responses: rs})
	}
	return subs, nil
}

type client struct {
	http      *http.Client
	baseURL   string
	evaluator string
	token     string
}

func (c *client) submit(s Submission) (*evaluationResponse, error) {
	body, err := json.Marshal(evaluationRequest{Responses: scoring.StorageResponses(s.Responses)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/accounts/"+s.AccountID+"/evaluations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Evaluator", c.evaluator)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result evaluationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func run(subs []Submission, c *client, scorer *scoring.Scorer, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{byClass: make(map[domain.Classification]int64)}

	work := make(chan Submission, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for s := range work {
				start := time.Now()
				result, err := c.submit(s)
				atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", s.AccountID, err)
					}
					continue
				}
				metrics.record(result.Classification)

				expected, err := scorer.Score(s.Responses)
				match := err == nil && expected.TotalScore == result.TotalScore &&
					expected.Classification == result.Classification
				if !match {
					atomic.AddInt64(&metrics.Mismatches, 1)
				}

				if verbose {
					status := "✓"
					if !match {
						status = "✗"
					}
					fmt.Printf("%s %-10s | answers: %2d | score: %3d | %s\n",
						status, s.AccountID, len(s.Responses), result.TotalScore, result.Classification)
				}
			}
		}()
	}

	for _, s := range subs {
		work <- s
	}
	close(work)
	wg.Wait()

	return metrics
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nRESULTS")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Mismatches:       %d\n", m.Mismatches)

	fmt.Println("\nCLASSIFICATIONS")
	ok := m.TotalProcessed - m.TotalErrors
	bands := make([]domain.Classification, 0, len(domain.ClassificationBands))
	for _, b := range domain.ClassificationBands {
		bands = append(bands, b.Classification)
	}
	sort.SliceStable(bands, func(i, j int) bool { return m.byClass[bands[i]] > m.byClass[bands[j]] })
	for _, c := range bands {
		pct := 0.0
		if ok > 0 {
			pct = 100 * float64(m.byClass[c]) / float64(ok)
		}
		fmt.Printf("   %-10s %8d (%.2f%%)\n", c, m.byClass[c], pct)
	}

	fmt.Println("\nPERFORMANCE")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}

	if m.Mismatches > 0 {
		fmt.Println("\n   ❌ server results differ from local scoring")
		os.Exit(2)
	}
	fmt.Println()
}
