package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/mkravets/vetriq/internal/config"
	"github.com/mkravets/vetriq/internal/interview"
	"github.com/mkravets/vetriq/internal/resume"
	"github.com/mkravets/vetriq/internal/session"
	"github.com/mkravets/vetriq/internal/storage"
)

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Run an interview in the terminal",
	Long: `Run an interview in the terminal against a local résumé.

Example:
  vetriq interview --resume ./resume.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("resume")
		if path == "" {
			return fmt.Errorf("--resume is required")
		}
		return runInterview(path)
	},
}

func init() {
	interviewCmd.Flags().String("resume", "", "path to the candidate's résumé PDF")
}

func runInterview(resumePath string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing llm backend: %w", err)
	}
	if !eng.IsRunning(ctx) {
		return fmt.Errorf("llm backend %q is not reachable", cfg.LLM.Backend)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	loop, sessions, indexer, _ := buildCore(cfg, eng, store)

	printStep("Reading résumé %s", resumePath)
	text, err := resume.ExtractText(resumePath)
	if err != nil {
		return fmt.Errorf("reading résumé: %w", err)
	}
	chunks := resume.Split(text, cfg.Interview.ChunkSize, cfg.Interview.ChunkOverlap)
	if len(chunks) == 0 {
		return fmt.Errorf("the document contains no extractable text")
	}

	role, err := interview.InferRole(ctx, eng, cfg.LLM.ChatModel, resume.Sample(chunks))
	if err != nil {
		printError("Role inference failed: %v", err)
		role = "Software Engineer"
	}
	printSuccess("Interviewing for: %s", role)

	resumeID := uuid.New().String()
	printStep("Indexing %d résumé chunks", len(chunks))
	if err := indexer.Index(ctx, resumeID, chunks); err != nil {
		return fmt.Errorf("indexing résumé: %w", err)
	}

	sess := session.New(uuid.New().String(), resumeID, role, cfg.Interview.MaxQuestions)
	if err := sessions.Put(sess); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	fmt.Fprintln(os.Stderr, "Type your answers below; \"exit\" ends the interview early.")

	input := ""
	for {
		var reply string
		err := sessions.WithSession(sess.ID, func(s *session.Session) error {
			out, terr := loop.Turn(ctx, s, input)
			reply = out
			return terr
		})
		if err != nil {
			return fmt.Errorf("interview turn: %w", err)
		}
		printAgent(reply)

		done, err := sessions.Get(sess.ID)
		if err != nil {
			return err
		}
		if done.Phase.Terminal() {
			printSuccess("Interview complete. Session %s", sess.ID)
			return nil
		}

		answer, err := promptAnswer()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				answer = "exit"
			} else {
				return fmt.Errorf("reading answer: %w", err)
			}
		}
		input = answer
	}
}

func promptAnswer() (string, error) {
	prompt := promptui.Prompt{
		Label: "you",
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("an answer is required")
			}
			return nil
		},
	}
	return prompt.Run()
}
