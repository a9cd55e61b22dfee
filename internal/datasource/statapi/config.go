package statapi

import (
	"net/http"

	"statflat/internal/config"
	"statflat/internal/datasource/httpds"
)

// FromConfig builds a Fetcher from the pipeline's http and source settings.
func FromConfig(p config.Pipeline, lg Logger) *Fetcher {
	headers := http.Header{}
	for k, v := range p.HTTP.Headers {
		headers.Set(k, v)
	}
	f := New(httpds.NewClient(httpds.Config{
		Timeout:            p.HTTP.Timeout,
		MaxRetries:         p.HTTP.MaxRetries,
		InitialBackoff:     p.HTTP.InitialBackoff,
		MaxBackoff:         p.HTTP.MaxBackoff,
		InsecureSkipVerify: p.HTTP.InsecureSkipVerify,
		BaseHeaders:        headers,
	}))
	f.BaseDir = p.Source.BaseDir
	f.MaxBytes = p.HTTP.MaxBytes
	f.DumpDir = p.HTTP.DumpDir
	f.Logger = lg
	return f
}
