package source

import "github.com/okian/autotrain/pkg/logger"

// FileOption configures a File source.
type FileOption func(*File)

// WithNullTokens replaces the text values read as null.
func WithNullTokens(tokens ...string) FileOption {
	return func(f *File) {
		f.nullTokens = make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			f.nullTokens[t] = struct{}{}
		}
	}
}

// PostgresOption configures a Postgres source.
type PostgresOption func(*Postgres)

// WithTable sets the documents table. Defaults to "documents".
func WithTable(name string) PostgresOption {
	return func(p *Postgres) {
		if name != "" {
			p.table = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) PostgresOption {
	return func(p *Postgres) {
		if l != nil {
			p.log = l
		}
	}
}
