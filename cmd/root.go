package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hair-advisor",
	Short: "A hair care quiz with selfie capture and AI product recommendations",
	Long: `Hair Advisor runs a short hair care quiz. Step 0 takes a selfie once a face
is positioned inside the on-screen guide, the questions that follow build a hair
profile, and the profile plus the optional photo are sent to a recommendation
service that picks a product line using an AI model (Gemini or OpenAI).`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
