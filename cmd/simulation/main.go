package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"grant-assistant-be/internal/dto"
	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/internal/repository/memory"
	"grant-assistant-be/internal/service"
	"grant-assistant-be/pkg/events"
	"grant-assistant-be/pkg/proposal/contextstore"
	"grant-assistant-be/pkg/proposal/draft"
	"grant-assistant-be/pkg/proposal/session"

	"github.com/fatih/color"
)

var defaultScript = []string{
	"Legen wir los",
	"Open Society Foundations",
	"Democracy Shield: Protecting Civil Society",
	"HORIZON-CL2-2025-DEMOCRACY-01",
}

// Replays a conversation through the engine entirely in memory and prints
// what each message did to the context.
func main() {
	scriptPath := flag.String("script", "", "file with one user message per line (default: built-in scenario)")
	saveDraft := flag.Bool("save", true, "save a named draft at the end and print its export")
	flag.Parse()

	script := defaultScript
	if *scriptPath != "" {
		lines, err := readScript(*scriptPath)
		if err != nil {
			color.Red("Failed to read script: %v", err)
			os.Exit(1)
		}
		script = lines
	}

	ctx := context.Background()
	log := logger.NewNopLogger()
	repo := memory.NewKVRepository()

	contexts := contextstore.New(repo, log)
	sessions := session.NewManager(repo, contexts, log)
	defer sessions.Attach(contexts)()
	transcript := service.NewTranscript(repo, log, 0)
	drafts := service.NewDraftService(draft.NewManager(repo, log), contexts, transcript, events.NopPublisher{}, log)
	proposals := service.NewProposalService(contexts, sessions, drafts, transcript, events.NopPublisher{}, log, 0)

	sess, err := proposals.Start(ctx)
	if err != nil {
		color.Red("Failed to start session: %v", err)
		os.Exit(1)
	}
	color.Cyan("=== Grant proposal conversation replay ===")
	fmt.Printf("Session %s (expires %s)\n", sess.Id, sess.ExpiresAt.Format("2006-01-02 15:04"))

	for i, text := range script {
		color.Yellow("\n[%d] USER: %s", i+1, text)

		res, err := proposals.SendMessage(ctx, &dto.SendMessageRequest{Content: text})
		if err != nil {
			color.Red("Failed: %v", err)
			continue
		}

		if len(res.Extracted) > 0 {
			color.Green("  extracted %s via %s", strings.Join(res.Extracted, ", "), res.Rule)
		} else {
			color.White("  nothing extracted")
		}
		for field, rejection := range res.Rejected {
			color.Red("  rejected %s: %s", field, rejection.Reason)
		}
		fmt.Printf("  step: %s  completion: %.1f%%\n", res.Step, res.Completion)
		if res.NextField != "" {
			color.Magenta("  next expected: %s", res.NextField)
		}
	}

	color.Cyan("\n=== Final context ===")
	prettyPrint(proposals.GetContext(ctx))

	if !*saveDraft {
		return
	}
	d, err := drafts.Save(ctx, &dto.SaveDraftRequest{Name: "Simulation"})
	if err != nil {
		color.Red("Failed to save draft: %v", err)
		os.Exit(1)
	}
	exported, err := drafts.Export(ctx, d.ID)
	if err != nil {
		color.Red("Failed to export draft: %v", err)
		os.Exit(1)
	}
	color.Cyan("\n=== Exported draft %s (v%d) ===", d.ID, d.Version)
	fmt.Println(exported)
}

func readScript(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func prettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(b))
}
