package main

// Tailor one resume from the terminal:
//   go run ./cmd/tailor -resume cv.pdf -title "Data Engineer"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"jobtailor/internal/bootstrap"
	"jobtailor/internal/shared/config"
	"jobtailor/internal/tailoring"
)

type options struct {
	resume      string
	title       string
	url         string
	company     string
	description string
	coverLetter bool
	format      string
	template    string
	download    bool
	extractOnly bool
}

func main() {
	var opts options
	flag.StringVar(&opts.resume, "resume", "", "path to the resume file (pdf, doc, docx or txt)")
	flag.StringVar(&opts.title, "title", "", "target job title")
	flag.StringVar(&opts.url, "url", "", "job posting URL")
	flag.StringVar(&opts.company, "company", "", "company name")
	flag.StringVar(&opts.description, "description", "", "job description text")
	flag.BoolVar(&opts.coverLetter, "cover-letter", false, "also generate a cover letter")
	flag.StringVar(&opts.format, "format", "dual", "output format: pdf, word or dual")
	flag.StringVar(&opts.template, "template", "professional", "resume template")
	flag.BoolVar(&opts.download, "download", false, "store generated documents in the object store")
	flag.BoolVar(&opts.extractOnly, "extract", false, "only print what the service reads from -url")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	guard := tailoring.NewSignalGuard(5*time.Second, func(msg string) {
		fmt.Fprintln(os.Stderr, msg)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{Guard: guard})
	if err != nil {
		return err
	}
	defer app.Close()
	coord := app.Coordinator

	if opts.extractOnly {
		details, err := coord.ExtractJobURL(ctx, opts.url)
		if err != nil {
			return err
		}
		fmt.Printf("Job title:   %s\nCompany:     %s\nDescription: %s\n", details.JobTitle, details.Company, details.Description)
		return nil
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go guard.Watch(ctx, signals, func() {
		cancel()
		coord.Cancel()
	})

	if _, err := coord.EnterRoute(ctx, tailoring.RouteUpload); err != nil {
		return err
	}
	payload, err := readResume(opts.resume)
	if err != nil {
		return err
	}
	if err := coord.AcceptResume(ctx, payload); err != nil {
		return err
	}

	job, err := coord.Submit(ctx, tailoring.TailoringRequest{
		JobTitle:            opts.title,
		JobURL:              opts.url,
		CompanyName:         opts.company,
		JobDescription:      opts.description,
		GenerateCoverLetter: opts.coverLetter,
		OutputFormat:        tailoring.OutputFormat(strings.ToLower(opts.format)),
		ResumeTemplate:      opts.template,
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, tailoring.ErrAttemptDiscarded) {
			return errCancelled
		}
		return describe(err)
	}
	fmt.Printf("Job %s submitted, waiting for the result...\n", job.ID)

	state, err := waitOutcome(coord.Wait(ctx))
	if err != nil {
		return err
	}
	printResult(state.Result)
	if opts.download {
		return downloadAll(ctx, app, state)
	}
	return nil
}

var errCancelled = errors.New("cancelled; the service may still finish the job")

// waitOutcome turns what Wait returned into the run's result. An attempt
// abandoned through the context or through Cancel both count as cancelled.
func waitOutcome(state tailoring.JobState, err error) (tailoring.JobState, error) {
	if errors.Is(err, context.Canceled) {
		return state, errCancelled
	}
	if err != nil {
		return state, err
	}
	switch state.Status {
	case tailoring.StatusCompleted:
		return state, nil
	case tailoring.StatusFailed:
		return state, describe(state.Error)
	default:
		return state, errCancelled
	}
}

func readResume(path string) (*tailoring.ResumePayload, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("-resume is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > tailoring.MaxResumeBytes {
		return nil, errors.New("File size exceeds 5MB limit")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return tailoring.NewResumePayload(filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)), content, info.ModTime())
}

func describe(err error) error {
	var classified *tailoring.ClassifiedError
	if !errors.As(err, &classified) || classified == nil {
		return err
	}
	switch classified.Kind() {
	case tailoring.KindParsing:
		return fmt.Errorf("%s\nThe resume could not be read. Try a different file", classified.Message())
	case tailoring.KindNetwork:
		return fmt.Errorf("%s\nCheck your connection and try again", classified.Message())
	default:
		return errors.New(classified.Message())
	}
}

func printResult(result *tailoring.TailoringResult) {
	if result == nil {
		return
	}
	fmt.Println("Tailored resume:")
	printLinks(result.ResumeArtifacts)
	if result.CoverLetterArtifacts != nil {
		fmt.Println("Cover letter:")
		printLinks(*result.CoverLetterArtifacts)
	}
	if s := result.ATSScore; s != nil {
		fmt.Printf("ATS score: %.0f (%s)\n", s.Overall, s.Rating)
	}
	fmt.Println()
	fmt.Println(result.PreviewText)
}

func printLinks(a tailoring.Artifacts) {
	if a.PdfURL != "" {
		fmt.Println("  pdf: ", a.PdfURL)
	}
	if a.WordURL != "" {
		fmt.Println("  word:", a.WordURL)
	}
}

func downloadAll(ctx context.Context, app *bootstrap.App, state tailoring.JobState) error {
	jobID := "restored"
	if state.Job != nil {
		jobID = state.Job.ID
	}
	kinds := []tailoring.ArtifactKind{
		tailoring.ArtifactResumePDF,
		tailoring.ArtifactResumeWord,
		tailoring.ArtifactCoverLetterPDF,
		tailoring.ArtifactCoverLetterWord,
	}
	for _, kind := range kinds {
		if _, _, ok := state.Result.ArtifactURL(kind); !ok {
			continue
		}
		stored, err := app.Downloader.Download(ctx, jobID, *state.Result, kind)
		if err != nil {
			log.Printf("download %s: %v", kind, err)
			continue
		}
		fmt.Printf("saved %s -> %s (%d bytes)\n", kind, stored.Key, stored.SizeBytes)
	}
	return nil
}
