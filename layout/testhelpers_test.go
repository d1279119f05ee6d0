package layout

import (
	"io"
	"net/http"
	"os"
)

func osWriteFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}

func readBody(r *http.Request) []byte {
	body, _ := io.ReadAll(r.Body)
	return body
}
