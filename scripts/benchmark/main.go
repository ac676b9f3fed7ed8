// Command benchmark measures end-to-end search latency against a
// running pricehound instance and reports cache effectiveness per
// query (a repeated run should be served from cache).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "pricehound API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	locale = flag.String("locale", "US", "target market locale")
	runs   = flag.Int("runs", 3, "number of runs per query for averaging")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Test queries covering distinct product categories.
var testQueries = []struct {
	Label string
	Query string
}{
	{"Phone", "iphone 15 pro"},
	{"Audio", "sony wh-1000xm5"},
	{"Console", "playstation 5"},
	{"Laptop", "macbook air m3"},
	{"Appliance", "dyson v15 vacuum"},
}

// --- Response types (mirrors models package) ---

type searchResponse struct {
	Query        string       `json:"query"`
	TotalResults int          `json:"total_results"`
	SearchTimeMs int64        `json:"search_time_ms"`
	ChannelsUsed []string     `json:"channels_used"`
	CacheStatus  string       `json:"cache_status"`
	Error        *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Benchmark result types ---

type runResult struct {
	Run          int    `json:"run"`
	WallMs       int64  `json:"wall_ms"`
	SearchTimeMs int64  `json:"search_time_ms"`
	TotalResults int    `json:"total_results"`
	Channels     int    `json:"channels"`
	CacheStatus  string `json:"cache_status"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

type queryAverages struct {
	WallMs       float64 `json:"wall_ms"`
	SearchTimeMs float64 `json:"search_time_ms"`
	TotalResults float64 `json:"total_results"`
}

type queryResult struct {
	Query     string         `json:"query"`
	Label     string         `json:"label"`
	Runs      []runResult    `json:"runs"`
	CacheHits int            `json:"cache_hits"`
	Averages  *queryAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp   string        `json:"timestamp"`
	APIURL      string        `json:"api_url"`
	Locale      string        `json:"locale"`
	RunsPerItem int           `json:"runs_per_query"`
	Results     []queryResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== Pricehound Benchmark Suite ===")
	fmt.Printf("API URL:    %s\n", *apiURL)
	fmt.Printf("Locale:     %s\n", *locale)
	fmt.Printf("Runs/query: %d\n", *runs)
	fmt.Printf("Output:     %s\n", *output)
	fmt.Println()

	// Quick connectivity check.
	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure pricehound is running\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		APIURL:      *apiURL,
		Locale:      *locale,
		RunsPerItem: *runs,
	}

	for _, t := range testQueries {
		fmt.Printf("Benchmarking [%s] %q ...\n", t.Label, t.Query)
		qr := queryResult{Query: t.Query, Label: t.Label}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkQuery(t.Query, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d results  cache=%s\n", rr.WallMs, rr.TotalResults, rr.CacheStatus)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			if rr.CacheStatus == "hit" {
				qr.CacheHits++
			}
			qr.Runs = append(qr.Runs, rr)
		}

		qr.Averages = computeAverages(qr.Runs)
		report.Results = append(report.Results, qr)
		fmt.Println()
	}

	// Print summary table.
	printTable(report.Results)

	// Write JSON report.
	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkQuery(query string, run int) runResult {
	rr := runResult{Run: run}

	params := url.Values{}
	params.Set("query", query)
	params.Set("locale", *locale)

	req, err := http.NewRequest("GET", *apiURL+"/api/v1/search?"+params.Encode(), nil)
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 120 * time.Second}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()
	rr.WallMs = time.Since(start).Milliseconds()

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	if sr.Error != nil {
		rr.Error = sr.Error.Message
		return rr
	}

	rr.Success = resp.StatusCode == http.StatusOK
	rr.SearchTimeMs = sr.SearchTimeMs
	rr.TotalResults = sr.TotalResults
	rr.Channels = len(sr.ChannelsUsed)
	rr.CacheStatus = sr.CacheStatus
	return rr
}

func computeAverages(runs []runResult) *queryAverages {
	var successCount int
	var avg queryAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.WallMs += float64(r.WallMs)
		avg.SearchTimeMs += float64(r.SearchTimeMs)
		avg.TotalResults += float64(r.TotalResults)
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.WallMs /= n
	avg.SearchTimeMs /= n
	avg.TotalResults /= n
	return &avg
}

func printTable(results []queryResult) {
	fmt.Println(strings.Repeat("─", 75))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Query\tAvg Latency\tAvg Results\tCache Hits\n")
	fmt.Fprintf(w, "─────\t───────────\t───────────\t──────────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\n", truncate(r.Query, 30))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%.1f\t%d/%d\n",
			truncate(r.Query, 30),
			int64(r.Averages.WallMs),
			r.Averages.TotalResults,
			r.CacheHits, len(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 75))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
