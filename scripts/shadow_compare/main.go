package main

import (
	"encoding/json"
	"errors"
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

type target struct {
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target          target
	LiveStatus      int
	AggregateStatus int
	StatusMatch     bool
	DataMatch       bool
	Error           error
	DurationLive    time.Duration
	DurationAgg     time.Duration
}

// Replays each target against one server twice, forcing the live and the
// aggregate read path via the strategy override header, and diffs the data
// payloads. Response meta is ignored since read path and timing always differ.
func main() {
	var (
		base        string
		token       string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&token, "token", "", "Bearer token for authenticated routes")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)

	for _, t := range targets {
		comp := compareTarget(client, base, token, t)
		if comp.Error != nil {
			if t.Critical {
				breaking++
			}
		} else if !comp.StatusMatch || !comp.DataMatch {
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func compareTarget(client *http.Client, base, token string, tgt target) comparison {
	comp := comparison{Target: tgt}

	liveResp, liveDur, liveErr := performRequest(client, base, token, tgt, "live_only")
	aggResp, aggDur, aggErr := performRequest(client, base, token, tgt, "aggregate_fallback")
	comp.DurationLive = liveDur
	comp.DurationAgg = aggDur

	if liveErr != nil {
		comp.Error = fmt.Errorf("live request failed: %w", liveErr)
		return comp
	}
	if aggErr != nil {
		comp.Error = fmt.Errorf("aggregate request failed: %w", aggErr)
		return comp
	}

	comp.LiveStatus = liveResp.StatusCode
	comp.AggregateStatus = aggResp.StatusCode
	comp.StatusMatch = comp.LiveStatus == comp.AggregateStatus

	defer liveResp.Body.Close()
	defer aggResp.Body.Close()

	liveBody, err := io.ReadAll(liveResp.Body)
	if err != nil {
		comp.Error = fmt.Errorf("read live body: %w", err)
		return comp
	}
	aggBody, err := io.ReadAll(aggResp.Body)
	if err != nil {
		comp.Error = fmt.Errorf("read aggregate body: %w", err)
		return comp
	}

	comp.DataMatch = dataEqual(liveBody, aggBody)
	return comp
}

func performRequest(client *http.Client, base, token string, tgt target, strategy string) (*http.Response, time.Duration, error) {
	if client == nil {
		return nil, 0, errors.New("nil client")
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := strings.TrimRight(base, "/") + path

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("X-Read-Strategy", strategy)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp, time.Since(start), nil
}

// dataEqual compares only the data members of the two envelopes.
func dataEqual(a, b []byte) bool {
	var ae, be struct {
		Data interface{} `json:"data"`
	}
	if err := json.Unmarshal(a, &ae); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &be); err != nil {
		return false
	}
	return reflect.DeepEqual(ae.Data, be.Data)
}

func printReport(comparisons []comparison) {
	fmt.Println("Path | Live | Aggregate | Status | Data | Live ms | Agg ms")
	for _, comp := range comparisons {
		if comp.Error != nil {
			fmt.Printf("%s | ERROR: %v\n", comp.Target.Path, comp.Error)
			continue
		}
		fmt.Printf("%s | %d | %d | %v | %v | %d | %d\n",
			comp.Target.Path,
			comp.LiveStatus,
			comp.AggregateStatus,
			comp.StatusMatch,
			comp.DataMatch,
			comp.DurationLive.Milliseconds(),
			comp.DurationAgg.Milliseconds())
	}
}
