// Package content provides the digest, archive, chunking, and path
// safety utilities shared by the OCI data model and layout engine.
package content

import (
	"io"
	"os"

	"github.com/opencontainers/go-digest"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// Algorithm is the digest algorithm used throughout this module.
// oras-py defaults to sha256 everywhere; SHA512 is accepted on read
// but never produced.
const Algorithm = digest.SHA256

// SHA256Bytes returns the sha256: digest of b.
func SHA256Bytes(b []byte) digest.Digest {
	return Algorithm.FromBytes(b)
}

// SHA256Reader streams r through the digest algorithm, returning the
// digest and the number of bytes read.
func SHA256Reader(r io.Reader) (digest.Digest, int64, error) {
	verifier := Algorithm.Digester()
	n, err := io.Copy(verifier.Hash(), r)
	if err != nil {
		return "", 0, orerrors.Wrap(err, orerrors.ProtocolError, "SHA256Reader", "failed reading stream")
	}
	return verifier.Digest(), n, nil
}

// SHA256File computes the digest and size of the file at path.
func SHA256File(path string) (digest.Digest, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, orerrors.Wrap(err, orerrors.FileNotFound, "SHA256File", "%s", path)
	}
	defer f.Close()
	return SHA256Reader(f)
}

// Verify reports whether b hashes to the expected digest.
func Verify(expected digest.Digest, b []byte) bool {
	return SHA256Bytes(b) == expected
}

// ValidateDigest parses and validates a digest string against the
// expected algorithm:hex form, without requiring any particular
// algorithm (registries may return sha512 content, even though this
// module never produces it).
func ValidateDigest(s string) (digest.Digest, error) {
	d := digest.Digest(s)
	if err := d.Validate(); err != nil {
		return "", orerrors.Wrap(err, orerrors.SchemaInvalid, "ValidateDigest", "%q is not a valid digest", s)
	}
	return d, nil
}
