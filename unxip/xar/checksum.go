package xar

import (
	"crypto/md5"
	"crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"strings"

	"github.com/opencontainers/go-digest"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
)

// newHash returns a hash for a XAR checksum style. sha256 and sha512 come
// from go-digest; sha1 and md5, which go-digest does not register, come from
// the standard library.
func newHash(style string) (hash.Hash, error) {
	style = strings.ToLower(style)
	if alg := digest.Algorithm(style); alg.Available() {
		return alg.Hash(), nil
	}
	switch style {
	case "sha1":
		return sha1.New(), nil
	case "md5":
		return md5.New(), nil
	}
	return nil, unxiperrors.ErrXar.Messagef("unsupported checksum style %q", style)
}

// sumHex hashes everything read from r.
func sumHex(style string, r io.Reader) (string, error) {
	h, err := newHash(style)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", unxiperrors.ErrIO.WithMessage("hashing xar data").WithCause(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func checksumMismatch(what, style, want, got string) error {
	return unxiperrors.ErrChecksum.Messagef("%s checksum mismatch", what).
		WithDetail("style", style).
		WithDetail("want", want).
		WithDetail("got", got)
}
