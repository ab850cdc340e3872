package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/hair-advisor/internal/capture"
	"github.com/kozaktomas/hair-advisor/internal/config"
	"github.com/kozaktomas/hair-advisor/internal/framing"
	"github.com/kozaktomas/hair-advisor/internal/quiz"
	"github.com/kozaktomas/hair-advisor/internal/recommend"
)

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Take the hair quiz in the terminal",
	Long: `Take the hair quiz interactively and print the product recommendation.

Answer each question with the option number or its label. Type "back" to return
to the previous question.

With --selfie the photo step replays the given image as a camera feed, waits until
the face detector reports a face inside the guide and captures it. Without it the
photo step is skipped.

After the recommendation GlissBot answers follow-up questions until "exit" or the
end of input. Pass --no-chat to stop after the recommendation.`,
	RunE: runQuiz,
}

func init() {
	rootCmd.AddCommand(quizCmd)

	quizCmd.Flags().String("selfie", "", "Image file used as the camera feed for the photo step")
	quizCmd.Flags().Duration("selfie-timeout", 20*time.Second, "How long to wait for a positioned face")
	quizCmd.Flags().Bool("no-chat", false, "Skip the follow-up chat after the recommendation")
}

// errQuit is returned when the input ends before the quiz is finished.
var errQuit = errors.New("quiz aborted")

func runQuiz(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	// Keep the terminal readable; errors still surface.
	if log.GetLevel() < logrus.DebugLevel {
		log.SetLevel(logrus.WarnLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	catalog := quiz.DefaultCatalog()
	gateway := newGateway(cfg, log)
	session := quiz.NewSession(catalog, gateway, quiz.Options{Logger: log})
	out := cmd.OutOrStdout()
	in := bufio.NewScanner(cmd.InOrStdin())

	bar := progressbar.NewOptions(catalog.TotalSteps(),
		progressbar.OptionSetDescription("Hair quiz"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionFullWidth(),
	)

	if selfie := mustGetString(cmd, "selfie"); selfie != "" {
		fmt.Fprintf(out, "\n%s\n", catalog.Capture.Prompt)
		result := takeSelfie(ctx, cfg, log, out, selfie, mustGetDuration(cmd, "selfie-timeout"))
		if err := session.SetCapture(result); err != nil {
			return err
		}
	}
	if _, err := session.Next(ctx); err != nil {
		return err
	}

	for {
		_ = bar.Set(session.Active())
		fmt.Fprintln(out)

		rec, done, err := askQuestion(ctx, session, in, out)
		if err != nil {
			return err
		}
		if done {
			_ = bar.Finish()
			printRecommendation(out, rec)
			if mustGetBool(cmd, "no-chat") || rec.UserID == "" {
				return nil
			}
			return chatLoop(ctx, gateway, rec.UserID, in, out)
		}
	}
}

// askQuestion shows the active question and handles one line of input.
// done is true once the last answer has been submitted successfully.
func askQuestion(ctx context.Context, session *quiz.Session, in *bufio.Scanner, out io.Writer) (*recommend.Recommendation, bool, error) {
	step := session.Active()
	q, ok := session.Catalog().Question(step)
	if !ok {
		return nil, false, fmt.Errorf("unexpected step %d", step)
	}

	fmt.Fprintf(out, "%s\n", q.Prompt)
	if q.Subtitle != "" {
		fmt.Fprintf(out, "  %s\n", q.Subtitle)
	}
	for i, o := range q.Options {
		marker := " "
		if session.Answers()[q.Key] == o {
			marker = "*"
		}
		fmt.Fprintf(out, " %s %d) %s\n", marker, i+1, o)
	}
	fmt.Fprint(out, "> ")

	if !in.Scan() {
		if err := in.Err(); err != nil {
			return nil, false, err
		}
		return nil, false, errQuit
	}
	line := strings.TrimSpace(in.Text())

	if strings.EqualFold(line, "back") {
		if step > 1 {
			session.Jump(step - 1)
		}
		return nil, false, nil
	}
	if line != "" {
		if err := session.Select(parseChoice(q, line)); err != nil {
			fmt.Fprintf(out, "Please pick one of the listed options.\n")
			return nil, false, nil
		}
	}

	rec, err := session.Next(ctx)
	switch {
	case errors.Is(err, quiz.ErrUnanswered):
		fmt.Fprintf(out, "Please pick an option first.\n")
		return nil, false, nil
	case errors.Is(err, quiz.ErrSubmissionFailed):
		fmt.Fprintf(out, "Could not get a recommendation: %v\nPress enter to try again.\n", err)
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return rec, rec != nil, nil
}

// parseChoice maps a 1-based option number to its label. Anything else is returned as typed.
func parseChoice(q quiz.Question, input string) string {
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(q.Options) {
		return q.Options[n-1]
	}
	return input
}

// takeSelfie replays path as the camera feed until a face is positioned or the timeout passes.
// Any failure degrades to a skipped photo step.
func takeSelfie(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, out io.Writer, path string, timeout time.Duration) capture.Result {
	copts, err := captureOptions(cfg)
	if err != nil {
		fmt.Fprintf(out, "Photo step skipped: %v\n", err)
		return capture.Skipped()
	}
	copts.Logger = log

	ctrl := capture.NewController(&capture.FileSource{Path: path}, newDetector(cfg, log), copts)
	defer func() { _ = ctrl.Close() }()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := ctrl.Start(ctx); err != nil {
		fmt.Fprintf(out, "Photo step skipped: %v\n", err)
		return ctrl.Skip()
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var last framing.PositionStatus
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "No face inside the guide after %s, photo step skipped.\n", timeout)
			return ctrl.Skip()
		case <-ticker.C:
			snap := ctrl.Snapshot()
			if snap.State == capture.StateError {
				fmt.Fprintf(out, "Photo step skipped: %s\n", snap.Message)
				return ctrl.Skip()
			}
			if snap.Status != last {
				last = snap.Status
				fmt.Fprintf(out, "  face: %s\n", snap.Status)
			}
			if snap.State != capture.StateReady || snap.Status != framing.StatusPositioned {
				continue
			}
			img, err := ctrl.Capture()
			if err != nil {
				log.WithError(err).Debug("capture attempt failed")
				continue
			}
			fmt.Fprintf(out, "Photo captured (%dx%d, %d bytes).\n", img.Width, img.Height, len(img.JPEG))
			return capture.Captured(img)
		}
	}
}

func printRecommendation(out io.Writer, rec *recommend.Recommendation) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Recommended line: %s\n", rec.Advice.RecommendedLine)
	fmt.Fprintf(out, "Reason:           %s\n", rec.Advice.Reason)
	fmt.Fprintf(out, "Product routine:  %s\n", rec.Advice.ProductRoutine)
	fmt.Fprintf(out, "Alternative:      %s\n", rec.Advice.Alternative)
	if rec.ImageAnalysis != "" {
		fmt.Fprintf(out, "\nPhoto analysis: %s\n", rec.ImageAnalysis)
	}
}

type chatter interface {
	Chat(ctx context.Context, userID, message string) (string, error)
}

// chatLoop relays questions to GlissBot until "exit", "quit" or the end of input.
// A failed reply is reported and the loop continues.
func chatLoop(ctx context.Context, c chatter, userID string, in *bufio.Scanner, out io.Writer) error {
	fmt.Fprintln(out, "\nGlissBot is ready! Ask me anything about your hair or Gliss products.")
	fmt.Fprintln(out, "Type 'exit' anytime to end the chat.")

	for {
		fmt.Fprint(out, "\nYou: ")
		if !in.Scan() {
			fmt.Fprintln(out)
			return in.Err()
		}
		message := strings.TrimSpace(in.Text())
		switch strings.ToLower(message) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(out, "GlissBot: Take care and keep shining!")
			return nil
		}

		reply, err := c.Chat(ctx, userID, message)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "GlissBot is unavailable: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "GlissBot: %s\n", strings.TrimSpace(reply))
	}
}
