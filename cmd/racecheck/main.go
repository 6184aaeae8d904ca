// Command racecheck fires concurrent verify calls for one request against a
// running server. At most one of them may succeed.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ==============================================
// METRICS
// ==============================================

type Metrics struct {
	mu            sync.Mutex
	byStatus      map[int]int64
	connErrors    int64
	totalDuration int64 // in milliseconds
}

func (m *Metrics) record(status int, duration time.Duration) {
	atomic.AddInt64(&m.totalDuration, duration.Milliseconds())
	m.mu.Lock()
	m.byStatus[status]++
	m.mu.Unlock()
}

// ==============================================
// HELPER FUNCTIONS
// ==============================================

func sendVerify(client *http.Client, url, token, code, runID string, m *Metrics) {
	data, _ := json.Marshal(map[string]string{"code": code})
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		atomic.AddInt64(&m.connErrors, 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", runID)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		atomic.AddInt64(&m.connErrors, 1)
		fmt.Printf("❌ connection error: %v\n", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	m.record(resp.StatusCode, time.Since(start))
}

func printMetrics(m *Metrics, total int) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("📊 VERIFY RACE RESULTS")
	fmt.Println(strings.Repeat("=", 60))

	statuses := make([]int, 0, len(m.byStatus))
	for status := range m.byStatus {
		statuses = append(statuses, status)
	}
	sort.Ints(statuses)
	for _, status := range statuses {
		fmt.Printf("%d %-22s %d\n", status, http.StatusText(status), m.byStatus[status])
	}
	fmt.Printf("Connection errors:         %d\n", atomic.LoadInt64(&m.connErrors))
	fmt.Println(strings.Repeat("-", 60))
	if total > 0 {
		fmt.Printf("Avg Response Time:  %dms\n", atomic.LoadInt64(&m.totalDuration)/int64(total))
	}
	fmt.Println(strings.Repeat("=", 60))
}

// ==============================================
// MAIN
// ==============================================

func main() {
	baseURL := flag.String("url", "http://localhost:8080/api/v1", "API base URL")
	token := flag.String("token", "", "bearer token of the request owner")
	requestID := flag.Int64("request", 0, "verification request id")
	code := flag.String("code", "", "the code that was delivered")
	n := flag.Int("n", 50, "concurrent verify calls")
	flag.Parse()

	if *token == "" || *requestID <= 0 || *code == "" {
		flag.Usage()
		os.Exit(2)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *n,
			MaxIdleConnsPerHost: *n,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	runID := uuid.NewString()
	url := fmt.Sprintf("%s/verifications/%d/verify", *baseURL, *requestID)
	fmt.Printf("🚀 %d concurrent verify calls against request %d (run %s)\n", *n, *requestID, runID)

	m := &Metrics{byStatus: make(map[int]int64)}
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < *n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			sendVerify(client, url, *token, *code, runID, m)
		}()
	}

	began := time.Now()
	close(start)
	wg.Wait()

	fmt.Printf("\n⏱️  Total execution time: %v\n", time.Since(began))
	printMetrics(m, *n)

	if wins := m.byStatus[http.StatusOK]; wins > 1 {
		fmt.Printf("❌ %d calls consumed the same code\n", wins)
		os.Exit(1)
	}
	fmt.Println("✅ at most one call succeeded")
}
