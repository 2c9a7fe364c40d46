package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	createUserMutation = `mutation($in: UserInputData!) { createUser(userInput: $in) { _id } }`
	loginQuery         = `query($e: String!, $p: String!) { login(email: $e, password: $p) { token userId } }`
	createPostMutation = `mutation($in: PostInputData!) { createPost(postInput: $in) { _id } }`
	postsQuery         = `query($page: Int) { posts(page: $page) { posts { _id title creator { name } } totalPosts } }`
)

// gqlResponse is the subset of a GraphQL response the load test inspects
type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"errors"`
}

type authData struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

func main() {
	// --- Command-line flags ---
	var server string
	var duration int
	var concurrency int
	var csvFile string
	var trimPercent float64
	var readRatio float64
	var certFile, keyFile string

	flag.StringVar(&server, "server", "http://localhost:8080", "server base URL")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent goroutines / users")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.Float64Var(&readRatio, "reads", 0.5, "fraction of requests that list posts instead of creating one")
	flag.StringVar(&certFile, "cert", "", "client certificate (optional)")
	flag.StringVar(&keyFile, "key", "", "client key (optional)")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			panic(fmt.Sprintf("failed to load cert/key: %v", err))
		}
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		}
	}

	// --- Create and log in one user per goroutine ---
	fmt.Printf("Creating %d users...\n", concurrency)
	users := make([]authData, concurrency)
	for i := 0; i < concurrency; i++ {
		email := fmt.Sprintf("load-user-%d-%d@bench.local", i, time.Now().UnixNano())

		if _, err := do(client, server, "", createUserMutation, map[string]any{
			"in": map[string]any{"email": email, "name": fmt.Sprintf("load %d", i), "password": "benchpassword"},
		}); err != nil {
			panic(fmt.Sprintf("failed to create user: %v", err))
		}

		res, err := do(client, server, "", loginQuery, map[string]any{"e": email, "p": "benchpassword"})
		if err != nil {
			panic(fmt.Sprintf("failed to log in: %v", err))
		}
		if err := json.Unmarshal(res.Data["login"], &users[i]); err != nil {
			panic(fmt.Sprintf("failed to decode login response: %v", err))
		}
	}
	fmt.Println("Users created.")

	// --- Prepare concurrency test ---
	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup

	// Atomic counters for thread-safe tracking
	var requests int64
	var successes int64
	var transportErrors int64
	var gqlErrors int64

	latencySlices := make([][]float64, concurrency) // each goroutine records latencies

	// --- Start concurrent goroutines for load test ---
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			user := users[idx]
			var localLatencies []float64
			var n int

			for time.Now().Before(stopTime) {
				n++
				query, vars := createPostMutation, map[string]any{
					"in": map[string]any{
						"title":   fmt.Sprintf("load test %d", n),
						"content": fmt.Sprintf("load test post %d", time.Now().UnixNano()),
					},
				}
				if float64(n%100)/100 < readRatio {
					query, vars = postsQuery, map[string]any{"page": 1 + n%5}
				}

				start := time.Now()
				res, err := do(client, server, user.Token, query, vars)
				lat := time.Since(start).Seconds() * 1000 // latency in ms
				localLatencies = append(localLatencies, lat)
				atomic.AddInt64(&requests, 1)

				switch {
				case err != nil:
					atomic.AddInt64(&transportErrors, 1)
					fmt.Printf("Request error: %v\n", err)
				case len(res.Errors) > 0:
					atomic.AddInt64(&gqlErrors, 1)
					fmt.Printf("Status %d: %s\n", res.Errors[0].Status, res.Errors[0].Message)
				default:
					atomic.AddInt64(&successes, 1)
				}
			}

			latencySlices[idx] = localLatencies
		}(i)
	}

	wg.Wait()

	// --- Merge all latencies ---
	var allLatencies []float64
	for _, slice := range latencySlices {
		allLatencies = append(allLatencies, slice...)
	}
	sort.Float64s(allLatencies)

	// --- Compute statistics ---
	trimmedMeanVal := trimmedMean(allLatencies, trimPercent)
	p50 := percentile(allLatencies, 50)
	p90 := percentile(allLatencies, 90)
	p99 := percentile(allLatencies, 99)

	fmt.Printf("Requests: %d  Successes: %d  transport errors: %d  graphql errors: %d\n",
		requests, successes, transportErrors, gqlErrors)
	fmt.Printf("Latency (ms): trimmed_mean=%.2f p50=%.2f p90=%.2f p99=%.2f\n", trimmedMeanVal, p50, p90, p99)

	// --- Save latencies to CSV ---
	f, err := os.Create(csvFile)
	if err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	w.Write([]string{"latency_ms"})
	for _, d := range allLatencies {
		w.Write([]string{fmt.Sprintf("%.3f", d)})
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}

// do posts one GraphQL operation. Non-200 responses are transport errors.
func do(client *http.Client, server, token, query string, vars map[string]any) (*gqlResponse, error) {
	b, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, server+"/graphql", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// trimmedMean calculates mean latency after trimming top/bottom trimPercent values
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	trimmed := data[trim : len(data)-trim]
	var sum float64
	for _, v := range trimmed {
		sum += v
	}
	return sum / float64(len(trimmed))
}

// percentile calculates the p-th percentile from sorted data
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	d0 := data[f]*(float64(c)-k) + data[c]*(k-float64(f))
	return d0
}
