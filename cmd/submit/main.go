// Package main posts a trading signal to a running orchestrator's
// ingress API.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

func main() {
	url := flag.String("url", "http://localhost:8080", "Orchestrator ingress base URL")
	signalID := flag.String("signal-id", "", "Stable signal id (optional; minted by ingress when empty)")
	callerID := flag.String("caller", "", "Caller id")
	walletAddr := flag.String("wallet", "", "Multi-sig wallet address")
	side := flag.String("side", "buy", "buy or sell")
	symbol := flag.String("symbol", "", "Token symbol")
	entry := flag.String("entry", "", "Expected entry price")
	tp1 := flag.String("tp1", "", "First take-profit level")
	tp2 := flag.String("tp2", "", "Second take-profit level")
	stopLoss := flag.String("sl", "", "Stop-loss level")
	ttl := flag.Duration("ttl", time.Hour, "Deadline relative to now")

	flag.Parse()

	if *callerID == "" || *walletAddr == "" || *symbol == "" || *entry == "" || *tp1 == "" || *tp2 == "" || *stopLoss == "" {
		log.Fatal("--caller, --wallet, --symbol, --entry, --tp1, --tp2 and --sl are required")
	}

	payload := map[string]interface{}{
		"signalId":      *signalID,
		"callerId":      *callerID,
		"walletAddress": *walletAddr,
		"side":          *side,
		"symbol":        *symbol,
		"entryPrice":    *entry,
		"tp1":           *tp1,
		"tp2":           *tp2,
		"stopLoss":      *stopLoss,
		"deadline":      time.Now().Add(*ttl).UnixMilli(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("encode signal: %v", err)
	}

	resp, err := http.Post(*url+"/signals", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("submit signal: %v", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("read response: %v", err)
	}

	fmt.Printf("%s\n%s\n", resp.Status, out)
}
