package zipstream_test

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/jaddr2line/zipstream"
	"github.com/klauspost/compress/zip"
)

func Example() {
	base, err := os.MkdirTemp("", "photos")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(base)
	err = os.MkdirAll(filepath.Join(base, "7kna"), 0755)
	if err != nil {
		log.Fatal(err)
	}
	err = os.WriteFile(filepath.Join(base, "7kna", "1.jpg"), []byte("not really a photo"), 0644)
	if err != nil {
		log.Fatal(err)
	}

	// serve archives of the directories in base
	locator, err := zipstream.NewLocator(base)
	if err != nil {
		log.Fatal(err)
	}
	producer, err := zipstream.NewZipProducer(zipstream.ZipOptions{})
	if err != nil {
		log.Fatal(err)
	}
	archives := zipstream.NewServer(locator, zipstream.NewPipeline(producer))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /archive/{archive_hash}/", func(w http.ResponseWriter, r *http.Request) {
		archives.ServeArchive(w, r, r.PathValue("archive_hash"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// download an archive
	resp, err := http.Get(srv.URL + "/archive/7kna/")
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(resp.Status, resp.Header.Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		log.Fatal(err)
	}
	for _, f := range zr.File {
		fmt.Println(f.Name, f.UncompressedSize64)
	}

	// Output:
	// 200 OK application/zip
	// 1.jpg 18
}
