package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avantbook/distill/internal/api"
	"github.com/avantbook/distill/internal/model"
)

// serverURL is the running distill server the book commands talk to,
// grounded on the teacher's cmd/shelf/api.go --server flag.
var serverURL string

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Commands that call a running distill server",
	Long: `Book commands call the HTTP API of a running distill server
(distill serve). Use --server to point at a non-default address.`,
}

// ListBooksResponse mirrors internal/server's GET /books body shape.
type ListBooksResponse struct {
	Books []model.Book `json:"books"`
}

var bookUploadCmd = &cobra.Command{
	Use:   "upload <pdf-path>",
	Short: "Upload a PDF and stream ingest progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runBookUpload,
}

var bookProcessCmd = &cobra.Command{
	Use:   "process <id>",
	Short: "Start the distillation pipeline for a book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := api.NewClient(serverURL)
		var result map[string]string
		if err := client.Post(cmd.Context(), "/book/"+args[0]+"/process", nil, &result); err != nil {
			return err
		}
		return api.Output(result)
	},
}

var bookGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a book's current status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := api.NewClient(serverURL)
		var book model.Book
		if err := client.Get(cmd.Context(), "/book/"+args[0], &book); err != nil {
			return err
		}
		return api.Output(book)
	},
}

var bookOutputCmd = &cobra.Command{
	Use:   "output <id>",
	Short: "Get a book's final distilled markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := api.NewClient(serverURL)
		var output model.FinalOutput
		if err := client.Get(cmd.Context(), "/book/"+args[0]+"/output", &output); err != nil {
			return err
		}
		return api.Output(output)
	},
}

var bookDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a book and all of its derived records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := api.NewClient(serverURL)
		if err := client.Delete(cmd.Context(), "/book/"+args[0]); err != nil {
			return err
		}
		fmt.Println("deleted")
		return nil
	},
}

var (
	bookListUserID string
)

var bookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := api.NewClient(serverURL)
		path := "/books"
		if bookListUserID != "" {
			path += "?user_id=" + bookListUserID
		}
		var resp ListBooksResponse
		if err := client.Get(cmd.Context(), path, &resp); err != nil {
			return err
		}
		return api.Output(resp)
	},
}

var (
	uploadTitle    string
	uploadAuthor   string
	uploadUserID   string
	uploadPipeline string
)

// runBookUpload posts the PDF as a multipart form to /book/upload-stream
// and prints each SSE event line as it arrives.
func runBookUpload(cmd *cobra.Command, args []string) error {
	pdfPath := args[0]
	f, err := os.Open(pdfPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", pdfPath, err)
	}
	defer f.Close()

	title := uploadTitle
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(pdfPath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read %s: %w", pdfPath, err)
	}
	for field, value := range map[string]string{
		"title":    title,
		"author":   uploadAuthor,
		"user_id":  uploadUserID,
		"pipeline": uploadPipeline,
	} {
		if value == "" {
			continue
		}
		if err := mw.WriteField(field, value); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := api.NewUploadRequest(cmd.Context(), serverURL+"/book/upload-stream", mw.FormDataContentType(), &body)
	if err != nil {
		return err
	}

	resp, err := api.DefaultHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(raw))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			fmt.Println(strings.TrimPrefix(line, "data: "))
		}
	}
	return scanner.Err()
}

func init() {
	bookCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "distill server URL")

	bookUploadCmd.Flags().StringVar(&uploadTitle, "title", "", "book title (default: filename)")
	bookUploadCmd.Flags().StringVar(&uploadAuthor, "author", "", "book author")
	bookUploadCmd.Flags().StringVar(&uploadUserID, "user-id", "", "owning user id")
	bookUploadCmd.Flags().StringVar(&uploadPipeline, "pipeline", "", "pipeline variant: claims or chapters (default: claims)")

	bookListCmd.Flags().StringVar(&bookListUserID, "user-id", "", "filter by owning user id")

	bookCmd.AddCommand(bookUploadCmd)
	bookCmd.AddCommand(bookProcessCmd)
	bookCmd.AddCommand(bookGetCmd)
	bookCmd.AddCommand(bookOutputCmd)
	bookCmd.AddCommand(bookDeleteCmd)
	bookCmd.AddCommand(bookListCmd)

	rootCmd.AddCommand(bookCmd)
}
