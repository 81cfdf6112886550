package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterh/liner"

	"github.com/quantdesk/agentmem/pkg/agentmem"
	"github.com/quantdesk/agentmem/pkg/config"
	"github.com/quantdesk/agentmem/pkg/log"
	"github.com/quantdesk/agentmem/pkg/memory"
	"github.com/quantdesk/agentmem/pkg/reflection"
)

// Constants for the command-line interface
const (
	cmdHelp    = "!help"
	cmdQuit    = "!quit"
	cmdAgent   = "!agent"
	cmdAdd     = "!add"
	cmdQuery   = "!query"
	cmdResult  = "!result"
	cmdStats   = "!stats"
	cmdRecord  = "!record"
	cmdCycle   = "!cycle"
	cmdPending = "!pending"
	cmdClear   = "!clear"
	cmdConfig  = "!config"
)

const helpText = `
memctl - Command Reference:
-----------------------------------------
!help                                  - Show this help message
!agent <name>                          - Set the current agent
!add <situation> | <recommendation> [| <result> [| <returns>]]
                                       - Store a memory for the current agent
!query <situation>                     - Rank memories against a situation
!result <id> <returns> <result text>   - Update a memory's outcome
!stats                                 - Show memory statistics
!record <market> <symbol> <price> <decision> <confidence> [reasoning]
                                       - Record an analysis for verification
!cycle                                 - Run a verification cycle now
!pending                               - Count records awaiting verification
!clear                                 - Delete all memories for the agent
!config                                - Show current configuration
!quit                                  - Exit

Notes:
- Tab completion is available for commands
- Use up/down arrows for command history`

// historyFile is the file where command history is stored
const historyFile = ".memctl_history"

// opTimeout bounds each datastore or pricing call issued from the prompt.
const opTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "agentmem.yaml", "Path to configuration file")
	flag.Parse()

	// A missing .env file is fine; explicit environment still applies.
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Setup(cfg.Logging)

	ctx := context.Background()
	client, err := agentmem.Open(ctx, cfg)
	if err != nil {
		log.Error("Failed to initialize agent memory subsystem", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	runCLI(client, cfg)
}

// session holds the REPL's mutable state.
type session struct {
	client *agentmem.Client
	cfg    *config.Config
	memory *memory.Memory
}

func runCLI(client *agentmem.Client, cfg *config.Config) {
	sess := &session{client: client, cfg: cfg}

	mem, err := client.Memory(cfg.Reflection.MemoryAgent)
	if err != nil {
		fmt.Printf("Failed to open agent memory: %v\n", err)
		return
	}
	sess.memory = mem

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetMultiLineMode(false)

	line.SetCompleter(func(prefix string) (c []string) {
		commands := []string{cmdHelp, cmdQuit, cmdAgent, cmdAdd, cmdQuery, cmdResult,
			cmdStats, cmdRecord, cmdCycle, cmdPending, cmdClear, cmdConfig}
		for _, cmd := range commands {
			if strings.HasPrefix(cmd, prefix) {
				c = append(c, cmd)
			}
		}
		return
	})

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Println("\n=== memctl ===")
	fmt.Println("Storage Driver:", cfg.Storage.Driver)
	fmt.Println("Embedding Provider:", cfg.Embedding.Provider)
	fmt.Printf("Current Agent: %s\n", sess.memory.AgentName())
	fmt.Println("Type !help for available commands.")

	for {
		input, err := line.Prompt(fmt.Sprintf("memctl::%s> ", sess.memory.AgentName()))
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nGoodbye!")
				break
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if input == cmdQuit {
			fmt.Println("Goodbye!")
			break
		}
		sess.processCommand(input, line)
	}
}

func (s *session) processCommand(input string, line *liner.State) {
	parts := strings.SplitN(input, " ", 2)
	cmd := parts[0]
	rest := ""
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch cmd {
	case cmdHelp:
		fmt.Println(helpText)

	case cmdAgent:
		s.switchAgent(rest)

	case cmdAdd:
		s.addMemory(ctx, rest)

	case cmdQuery:
		s.queryMemories(ctx, rest)

	case cmdResult:
		s.updateResult(ctx, rest)

	case cmdStats:
		s.showStats(ctx)

	case cmdRecord:
		s.recordAnalysis(ctx, rest)

	case cmdCycle:
		s.runCycle(ctx)

	case cmdPending:
		s.showPending(ctx)

	case cmdClear:
		s.clearMemories(ctx, line)

	case cmdConfig:
		s.showConfig()

	default:
		fmt.Printf("Unknown command %q; type !help for the command list.\n", cmd)
	}
}

func (s *session) switchAgent(name string) {
	if name == "" {
		fmt.Printf("Current agent: %s\n", s.memory.AgentName())
		return
	}
	mem, err := s.client.Memory(name)
	if err != nil {
		fmt.Printf("Failed to switch agent: %v\n", err)
		return
	}
	s.memory = mem
	fmt.Printf("Agent set to %s\n", name)
}

func (s *session) addMemory(ctx context.Context, rest string) {
	if rest == "" {
		fmt.Println("Usage: !add <situation> | <recommendation> [| <result> [| <returns>]]")
		return
	}

	fields := strings.Split(rest, "|")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	entry := memory.Entry{Situation: fields[0]}
	if len(fields) > 1 {
		entry.Recommendation = fields[1]
	}
	if len(fields) > 2 {
		entry.Result = fields[2]
	}
	if len(fields) > 3 && fields[3] != "" {
		returns, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			fmt.Printf("Invalid returns value %q: %v\n", fields[3], err)
			return
		}
		entry.Returns = &returns
	}

	id, err := s.memory.Add(ctx, entry)
	if err != nil {
		fmt.Printf("Failed to add memory: %v\n", err)
		return
	}
	fmt.Printf("Stored memory %s\n", id)
}

func (s *session) queryMemories(ctx context.Context, situation string) {
	if situation == "" {
		fmt.Println("Usage: !query <situation>")
		return
	}

	results, err := s.memory.Query(ctx, situation, 5, nil)
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		return
	}
	if len(results) == 0 {
		fmt.Println("No matching memories.")
		return
	}

	for i, r := range results {
		fmt.Printf("%d. [%.3f] (sim %.3f, recency %.3f) %s\n", i+1, r.Score, r.Similarity, r.Recency, r.Situation)
		if r.Recommendation != "" {
			fmt.Printf("   -> %s\n", r.Recommendation)
		}
		if r.Result != "" {
			fmt.Printf("   == %s\n", r.Result)
		}
		fmt.Printf("   id=%s created=%s\n", r.ID, r.CreatedAt.Format(time.RFC3339))
	}
}

func (s *session) updateResult(ctx context.Context, rest string) {
	fields := strings.SplitN(rest, " ", 3)
	if len(fields) < 3 {
		fmt.Println("Usage: !result <id> <returns> <result text>")
		return
	}

	returns, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		fmt.Printf("Invalid returns value %q: %v\n", fields[1], err)
		return
	}

	if err := s.memory.UpdateResult(ctx, fields[0], fields[2], &returns); err != nil {
		fmt.Printf("Failed to update memory: %v\n", err)
		return
	}
	fmt.Println("Memory updated.")
}

func (s *session) showStats(ctx context.Context) {
	stats, err := s.memory.Statistics(ctx)
	if err != nil {
		fmt.Printf("Failed to get statistics: %v\n", err)
		return
	}
	fmt.Printf("Total memories:     %d\n", stats.TotalMemories)
	fmt.Printf("Average returns:    %.2f%%\n", stats.AverageReturns)
	fmt.Printf("Positive decisions: %d\n", stats.PositiveDecisions)
	fmt.Printf("Success rate:       %.2f%%\n", stats.SuccessRate)
}

func (s *session) recordAnalysis(ctx context.Context, rest string) {
	fields := strings.SplitN(rest, " ", 6)
	if len(fields) < 5 {
		fmt.Println("Usage: !record <market> <symbol> <price> <decision> <confidence> [reasoning]")
		return
	}

	price, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		fmt.Printf("Invalid price %q: %v\n", fields[2], err)
		return
	}
	confidence, err := strconv.Atoi(fields[4])
	if err != nil {
		fmt.Printf("Invalid confidence %q: %v\n", fields[4], err)
		return
	}

	analysis := reflection.Analysis{
		Market:     fields[0],
		Symbol:     fields[1],
		Price:      price,
		Decision:   fields[3],
		Confidence: confidence,
	}
	if len(fields) == 6 {
		analysis.Reasoning = fields[5]
	}

	id, err := s.client.Scheduler().Record(ctx, analysis)
	if err != nil {
		fmt.Printf("Failed to record analysis: %v\n", err)
		return
	}
	fmt.Printf("Recorded analysis %s\n", id)
}

func (s *session) runCycle(ctx context.Context) {
	report, err := s.client.Scheduler().RunCycle(ctx)
	if err != nil {
		fmt.Printf("Verification cycle failed: %v\n", err)
		return
	}
	fmt.Printf("Cycle finished: claimed=%d completed=%d skipped=%d failed=%d\n",
		report.Claimed, report.Completed, report.Skipped, report.Failed)
}

func (s *session) showPending(ctx context.Context) {
	count, err := s.client.Scheduler().PendingCount(ctx)
	if err != nil {
		fmt.Printf("Failed to count pending records: %v\n", err)
		return
	}
	fmt.Printf("Pending verification records: %d\n", count)

	stats, err := s.client.Scheduler().Statistics(ctx)
	if err != nil {
		fmt.Printf("Failed to get reflection statistics: %v\n", err)
		return
	}
	fmt.Printf("Total: %d | Completed: %d | Average return: %.2f%%\n",
		stats.TotalRecords, stats.CompletedRecords, stats.AverageReturn)
}

func (s *session) clearMemories(ctx context.Context, line *liner.State) {
	confirm, err := line.Prompt(fmt.Sprintf("Delete ALL memories for %s? (yes/no): ", s.memory.AgentName()))
	if err != nil || strings.TrimSpace(confirm) != "yes" {
		fmt.Println("Aborted.")
		return
	}

	if err := s.memory.Clear(ctx); err != nil {
		fmt.Printf("Failed to clear memories: %v\n", err)
		return
	}
	fmt.Println("Memories cleared.")
}

func (s *session) showConfig() {
	fmt.Printf("Storage driver:     %s\n", s.cfg.Storage.Driver)
	fmt.Printf("Embedding provider: %s (dims %d)\n", s.cfg.Embedding.Provider, s.cfg.Embedding.Dimensions)
	fmt.Printf("Vectors enabled:    %t\n", s.cfg.Memory.VectorsEnabled())
	fmt.Printf("Candidate limit:    %d\n", s.cfg.Memory.CandidateLimit)
	fmt.Printf("Half-life days:     %.1f\n", s.cfg.Memory.HalfLifeDays)
	fmt.Printf("Weights:            sim=%.2f recency=%.2f returns=%.2f\n",
		s.cfg.Memory.SimilarityWeight, s.cfg.Memory.RecencyWeight, s.cfg.Memory.ReturnsWeight)
	fmt.Printf("Check days:         %d\n", s.cfg.Reflection.CheckDays)
	fmt.Printf("Cycle schedule:     %s\n", s.cfg.Reflection.Schedule)
	fmt.Printf("Pricing base URL:   %s\n", s.cfg.Pricing.BaseURL)
}
