package dataimporter

import (
	"archive/zip"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
)

// feedSource opens the fixed-name files of one feed snapshot, backed by
// either a zip archive or a plain directory.
type feedSource struct {
	path string
	zip  *zip.ReadCloser
}

func openFeed(path string) (*feedSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return &feedSource{path: path}, nil
	}

	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}

	return &feedSource{path: path, zip: archive}, nil
}

func (source *feedSource) Close() error {
	if source.zip != nil {
		return source.zip.Close()
	}
	return nil
}

// Open returns the named file's reader, or exists=false when the feed does
// not carry it. Missing optional files are not an error.
func (source *feedSource) Open(name string) (io.ReadCloser, bool, error) {
	if source.zip != nil {
		for _, zipFile := range source.zip.File {
			if strings.EqualFold(zipFile.Name, name) {
				file, err := zipFile.Open()
				return file, true, err
			}
		}
		return nil, false, nil
	}

	file, err := os.Open(filepath.Join(source.path, name))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return file, true, nil
}

// The reader factory is a gocsv package global, so it is configured exactly
// once. Imports for different agencies parse feeds concurrently.
func init() {
	// Allow us to ignore those naughty records that have missing columns
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		return r
	})
}

// streamRecords pushes each parsed row through handle as it is read, so a
// feed never has to fit in memory as typed records.
func streamRecords[T any](reader io.Reader, handle func(*T) error) error {
	records := make(chan T)
	parseErr := make(chan error, 1)
	go func() {
		parseErr <- gocsv.UnmarshalToChan(reader, records)
	}()

	var handleErr error
	for record := range records {
		if handleErr != nil {
			// Drain so the parser goroutine can finish.
			continue
		}
		record := record
		handleErr = handle(&record)
	}

	if handleErr != nil {
		return handleErr
	}

	err := <-parseErr
	if err == gocsv.ErrEmptyCSVFile {
		return nil
	}
	return err
}
