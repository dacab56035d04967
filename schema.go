package tagdb

import (
	"fmt"
	"regexp"
)

// Sub-buckets of a namespace's root buckets in the bucket engines.
var (
	dataBucket = makeBucketName("data")
	tagsBucket = makeBucketName("tags")
)

type bucketName []byte

func makeBucketName(name string) bucketName {
	return bucketName(name)
}

func (bn bucketName) String() string {
	return string(bn)
}

// docTablePrefix is prepended to a table name to get its document table.
const docTablePrefix = "doc"

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// tableNames are the two physical tables backing one namespace.
type tableNames struct {
	KV  string
	Doc string
}

func (tn tableNames) String() string {
	return tn.KV + "+" + tn.Doc
}

func deriveTableNames(name string) (tableNames, error) {
	if !tableNameRe.MatchString(name) {
		return tableNames{}, fmt.Errorf("%w: invalid table name %q", ErrInvalidArgument, name)
	}
	return tableNames{KV: name, Doc: docTablePrefix + name}, nil
}
