package mediafile

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strconv"
)

// SampleSize is the number of leading page entries hashed for image-based
// formats.
const SampleSize = 5

// LeadingSize is the number of leading bytes hashed for container formats
// whose pages are not standalone images.
const LeadingSize = 1 << 20

// SampleHash digests the given page samples plus the sample count. Image
// archive processors pass the raw bytes of their first pages, so the hash
// survives renames and metadata-only edits elsewhere in the archive.
func SampleHash(samples [][]byte) string {
	h := sha256.New()
	for _, sample := range samples {
		_, _ = h.Write(sample)
	}
	_, _ = io.WriteString(h, strconv.Itoa(len(samples)))
	return hex.EncodeToString(h.Sum(nil))
}

// LeadingHash digests the first LeadingSize bytes of the file plus its total
// size, so same-prefix files of different lengths still hash apart.
func LeadingHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", IOError(path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, io.LimitReader(f, LeadingSize)); err != nil {
		return "", IOError(path, err)
	}
	info, err := f.Stat()
	if err != nil {
		return "", IOError(path, err)
	}
	_, _ = io.WriteString(h, strconv.FormatInt(info.Size(), 10))
	return hex.EncodeToString(h.Sum(nil)), nil
}
