// Command shadow_compare replays a set of read-only requests against the Go
// API and the legacy Spring service and reports response differences. Used
// during the migration cutover to catch contract drift before switching
// traffic.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

type endpoint struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

type targetsFile struct {
	Endpoints []endpoint `json:"endpoints"`
}

type result struct {
	Endpoint     endpoint
	NewStatus    int
	LegacyStatus int
	StatusMatch  bool
	BodyMatch    bool
	NewLatency   time.Duration
	Err          error
}

type runner struct {
	client     *http.Client
	newBase    string
	legacyBase string
	authToken  string
	ignoreKeys map[string]struct{}
}

func main() {
	var (
		newBase     string
		legacyBase  string
		targetsPath string
		authToken   string
		ignoreList  string
		timeout     time.Duration
	)

	flag.StringVar(&newBase, "new-base", "http://localhost:8080", "new API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:8081", "legacy Spring API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "endpoints file")
	flag.StringVar(&authToken, "token", "", "bearer token sent to both services")
	flag.StringVar(&ignoreList, "ignore-keys", "created_at,updated_at,requested_at,completed_at,download_token", "comma separated JSON keys excluded from body comparison")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "per-request timeout")
	flag.Parse()

	endpoints, err := loadEndpoints(targetsPath)
	if err != nil {
		log.Fatalf("failed to load endpoints: %v", err)
	}

	r := &runner{
		client:     &http.Client{Timeout: timeout},
		newBase:    strings.TrimRight(newBase, "/"),
		legacyBase: strings.TrimRight(legacyBase, "/"),
		authToken:  authToken,
		ignoreKeys: splitKeys(ignoreList),
	}

	var criticalDiffs, minorDiffs int
	results := make([]result, 0, len(endpoints))
	for _, ep := range endpoints {
		res := r.compare(ep)
		if res.Err != nil || !res.StatusMatch || !res.BodyMatch {
			if ep.Critical {
				criticalDiffs++
			} else {
				minorDiffs++
			}
		}
		results = append(results, res)
	}

	report(results)
	fmt.Printf("critical diffs: %d, minor diffs: %d\n", criticalDiffs, minorDiffs)
	if criticalDiffs > 0 {
		os.Exit(1)
	}
}

func loadEndpoints(path string) ([]endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f targetsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints defined in %s", path)
	}
	return f.Endpoints, nil
}

func splitKeys(raw string) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	return keys
}

func (r *runner) compare(ep endpoint) result {
	res := result{Endpoint: ep}

	newStatus, newBody, newDur, err := r.fetch(r.newBase, ep)
	if err != nil {
		res.Err = fmt.Errorf("new api: %w", err)
		return res
	}
	legacyStatus, legacyBody, _, err := r.fetch(r.legacyBase, ep)
	if err != nil {
		res.Err = fmt.Errorf("legacy api: %w", err)
		return res
	}

	res.NewStatus = newStatus
	res.LegacyStatus = legacyStatus
	res.NewLatency = newDur
	res.StatusMatch = newStatus == legacyStatus
	res.BodyMatch = r.bodiesEqual(newBody, legacyBody)
	return res
}

func (r *runner) fetch(base string, ep endpoint) (int, []byte, time.Duration, error) {
	method := strings.ToUpper(strings.TrimSpace(ep.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := ep.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequest(method, base+path, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	if r.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.authToken)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, err
	}
	return resp.StatusCode, body, time.Since(start), nil
}

func (r *runner) bodiesEqual(a, b []byte) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}

	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	r.scrub(&aj)
	r.scrub(&bj)
	return reflect.DeepEqual(aj, bj)
}

// scrub removes volatile keys and collapses whole-number floats so the
// two JSON trees compare structurally.
func (r *runner) scrub(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k := range r.ignoreKeys {
			delete(val, k)
		}
		for k, child := range val {
			r.scrub(&child)
			val[k] = child
		}
	case []interface{}:
		for i, child := range val {
			r.scrub(&child)
			val[i] = child
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func report(results []result) {
	fmt.Println("shadow compare")
	fmt.Println("--------------")
	for _, res := range results {
		verdict := "ok"
		switch {
		case res.Err != nil:
			verdict = "error"
		case !res.StatusMatch || !res.BodyMatch:
			verdict = "diff"
		}
		fmt.Printf("[%-5s] %s %s\n", verdict, res.Endpoint.Method, res.Endpoint.Path)
		if res.Err != nil {
			fmt.Printf("        %v\n", res.Err)
			continue
		}
		fmt.Printf("        new=%d legacy=%d latency=%s status=%t body=%t critical=%t\n",
			res.NewStatus, res.LegacyStatus, res.NewLatency, res.StatusMatch, res.BodyMatch, res.Endpoint.Critical)
	}
}
