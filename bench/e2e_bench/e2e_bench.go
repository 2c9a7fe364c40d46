package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// liveEvent is the envelope pushed on /ws.
type liveEvent struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Post   struct {
		ID string `json:"_id"`
	} `json:"post"`
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Measures how long a created post takes to reach live subscribers.
func main() {
	// CLI flags
	var serverAddr string
	var U, P, concurrency int
	var pollTimeout int

	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "server base URL")
	flag.IntVar(&U, "users", 20, "number of users (each one also subscribes)")
	flag.IntVar(&P, "posts", 100, "number of posts to publish")
	flag.IntVar(&concurrency, "c", 20, "concurrency for posting")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for post delivery")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}

	// --- 1) Create users and log them in ---
	fmt.Printf("Creating %d users...\n", U)
	tokens := make([]string, 0, U)
	for i := 0; i < U; i++ {
		email := fmt.Sprintf("e2e-%d-%d@bench.local", i, time.Now().UnixNano())
		if _, err := graphql(ctx, client, serverAddr, "",
			`mutation($in: UserInputData!) { createUser(userInput: $in) { _id } }`,
			map[string]any{"in": map[string]any{"email": email, "name": fmt.Sprintf("e2e %d", i), "password": "benchpassword"}},
		); err != nil {
			fmt.Printf("create user error: %v\n", err)
			os.Exit(1)
		}

		res, err := graphql(ctx, client, serverAddr, "",
			`query($e: String!, $p: String!) { login(email: $e, password: $p) { token } }`,
			map[string]any{"e": email, "p": "benchpassword"},
		)
		if err != nil {
			fmt.Printf("login error: %v\n", err)
			os.Exit(1)
		}
		var auth struct {
			Token string `json:"token"`
		}
		_ = json.Unmarshal(res.Data["login"], &auth)
		tokens = append(tokens, auth.Token)
	}
	fmt.Println("Users created successfully.")

	// --- 2) Subscribe every user to live events ---
	wsURL := strings.Replace(serverAddr, "http", "ws", 1) + "/ws"
	type delivery struct {
		postID string
		at     time.Time
	}
	deliveries := make(chan delivery, U*P)
	var subs sync.WaitGroup

	for _, token := range tokens {
		conn, _, err := websocket.Dial(ctx, wsURL+"?token="+url.QueryEscape(token), nil)
		if err != nil {
			fmt.Printf("subscribe error: %v\n", err)
			os.Exit(1)
		}
		subs.Add(1)
		go func() {
			defer subs.Done()
			defer conn.Close(websocket.StatusNormalClosure, "")
			for {
				var ev liveEvent
				if err := wsjson.Read(ctx, conn, &ev); err != nil {
					return
				}
				if ev.Action != "create" {
					continue
				}
				select {
				case deliveries <- delivery{postID: ev.Post.ID, at: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	fmt.Printf("%d subscribers connected.\n", len(tokens))

	// --- 3) Publish posts concurrently ---
	fmt.Printf("Publishing %d posts with concurrency %d...\n", P, concurrency)
	var sentMu sync.Mutex
	sent := make(map[string]time.Time, P)

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency) // concurrency limiter

	for i := 0; i < P; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			token := tokens[rand.Intn(len(tokens))]
			start := time.Now()
			res, err := graphql(ctx, client, serverAddr, token,
				`mutation($in: PostInputData!) { createPost(postInput: $in) { _id } }`,
				map[string]any{"in": map[string]any{"title": fmt.Sprintf("e2e %d", i), "content": fmt.Sprintf("post %d", rand.Int())}},
			)
			if err != nil {
				fmt.Printf("post error: %v\n", err)
				return
			}
			var p struct {
				ID string `json:"_id"`
			}
			_ = json.Unmarshal(res.Data["createPost"], &p)

			sentMu.Lock()
			sent[p.ID] = start
			sentMu.Unlock()
		}(i)
	}
	wg.Wait()

	// --- 4) Collect deliveries until every subscriber saw every post or timeout ---
	fmt.Println("Collecting deliveries...")
	want := len(sent) * len(tokens)
	var latencies []float64
	var unknown int
	deadline := time.After(time.Duration(pollTimeout) * time.Second)

collect:
	for len(latencies) < want {
		select {
		case d := <-deliveries:
			start, ok := sent[d.postID]
			if !ok {
				unknown++
				continue
			}
			latencies = append(latencies, d.at.Sub(start).Seconds()*1000)
		case <-deadline:
			break collect
		}
	}
	cancel()
	subs.Wait()

	failCount := want - len(latencies)

	// --- 5) Compute latency statistics and export to CSV ---
	if len(latencies) == 0 {
		fmt.Println("No successful deliveries recorded.")
		return
	}

	trimPercent := 1.0
	meanVal := trimmedMean(latencies, trimPercent)
	p50 := trimmedPercentile(latencies, 50, trimPercent)
	p90 := trimmedPercentile(latencies, 90, trimPercent)
	p99 := trimmedPercentile(latencies, 99, trimPercent)
	fmt.Printf("Delivery stats (ms): count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f fails=%d foreign=%d\n",
		len(latencies), meanVal, p50, p90, p99, failCount, unknown)

	// Export latencies to CSV
	f, err := os.Create("e2e_latencies.csv")
	if err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	w := csv.NewWriter(f)
	w.Write([]string{"latency_ms"})
	for _, v := range latencies {
		w.Write([]string{fmt.Sprintf("%.3f", v)})
	}
	w.Flush()
	f.Close()
	fmt.Println("Saved e2e_latencies.csv")
}

func graphql(ctx context.Context, client *http.Client, server, token, query string, vars map[string]any) (*gqlResponse, error) {
	b, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/graphql", bytes.NewReader(b))
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

	var out gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("graphql: %s", out.Errors[0].Message)
	}
	return &out, nil
}

// trimmedMean calculates the mean of a dataset excluding extreme values.
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sort.Float64s(data)
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	data = data[trim : len(data)-trim]
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// trimmedPercentile returns a percentile value after trimming extremes.
func trimmedPercentile(data []float64, p float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sort.Float64s(data)
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	data = data[trim : len(data)-trim]
	return percentile(data, p)
}

// percentile calculates the requested percentile using linear interpolation.
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
	d0 := data[f] * (float64(c) - k)
	d1 := data[c] * (k - float64(f))
	return d0 + d1
}
