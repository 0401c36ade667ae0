package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"time"

	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"
)

// Internal configuration data structures for jsbundle.

const (
	DefaultOverrideDir = "browser"
	DefaultGlobal      = "window"
	DefaultWorkers     = 4
)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Root is the top-level configuration structure used by jsbundle.
type Root struct {
	Bundles map[string]*Bundle `json:"bundles,omitempty"`
	Secrets map[string]*Secret `json:"secrets,omitempty"` // Schema validation overrides Secret to object type.
	Service *Service           `json:"service,omitempty"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for the Root struct.
// Bundles are defined in a mapping where keys are the bundle names. It is also
// used to inject the secret store into each secret reference so that internal
// callers can resolve secret values as needed.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw) // Assign the unmarshaled data back to the original struct
	return r.unmarshal()
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) unmarshal() error {
	for name := range r.Secrets {
		r.Secrets[name] = cmp.Or(r.Secrets[name], &Secret{})
		r.Secrets[name].Name = name
	}

	for name := range r.Bundles {
		if r.Bundles[name] == nil {
			return fmt.Errorf("bundle %q: target is required", name)
		}
		b := r.Bundles[name]
		b.Name = name

		for _, ref := range b.ObjectStorage.credentials() {
			ref.value = r.Secrets[ref.Name]
		}
	}

	return nil
}

// SortedBundles yields the bundles in name order.
func (r *Root) SortedBundles() iter.Seq2[int, *Bundle] {
	return iterator(r.Bundles, func(b *Bundle) string { return b.Name })
}

// Workers returns the configured number of concurrent builds.
func (r *Root) Workers() int {
	if r.Service == nil || r.Service.Workers <= 0 {
		return DefaultWorkers
	}
	return r.Service.Workers
}

// ResolvePaths makes every relative file system path in the configuration
// relative to dir.
func (r *Root) ResolvePaths(dir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}

	for _, b := range r.Bundles {
		resolve(&b.Target)
		resolve(&b.SourceDir)
		for i := range b.Directories {
			resolve(&b.Directories[i].Path)
		}
		if fs := b.ObjectStorage.FileSystemStorage; fs != nil {
			resolve(&fs.Path)
		}
	}
}

func iterator[V any](m map[string]V, name func(V) string) func(func(int, V) bool) {
	names := make([]string, 0, len(m))
	for _, v := range m {
		names = append(names, name(v))
	}

	sort.Strings(names)

	return func(yield func(int, V) bool) {
		for i, name := range names {
			if !yield(i, m[name]) {
				return
			}
		}
	}
}

func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	return rootSchema.Validate(config)
}

// Bundle defines the configuration for one output script.
type Bundle struct {
	Name            string        `json:"-"`
	Target          string        `json:"target"`
	SourceDir       string        `json:"source_dir,omitempty"`
	Directories     []Directory   `json:"directories" minItems:"1"`
	ExcludedFiles   StringSet     `json:"excluded_files,omitempty"`
	Namespaces      []string      `json:"namespaces,omitempty"`
	AllowedPrefixes []string      `json:"allowed_prefixes,omitempty"`
	OverrideDir     *string       `json:"override_dir,omitempty"` // If nil, "browser". An empty string disables overrides.
	Global          string        `json:"global,omitempty"`
	Minify          bool          `json:"minify,omitempty"`
	Interval        Duration      `json:"rebuild_interval,omitzero"`
	ObjectStorage   ObjectStorage `json:"object_storage,omitzero"`

	_ struct{} `additionalProperties:"false"`
}

// Directory is a directory on the local filesystem that contributes input
// files to a bundle.
type Directory struct {
	Path          string    `json:"path"`
	IncludedFiles StringSet `json:"included_files,omitempty"`
	ExcludedFiles StringSet `json:"excluded_files,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (d Directory) Equal(other Directory) bool {
	return d.Path == other.Path &&
		d.IncludedFiles.Equal(other.IncludedFiles) &&
		d.ExcludedFiles.Equal(other.ExcludedFiles)
}

// Override returns the override directory name.
func (s *Bundle) Override() string {
	if s.OverrideDir == nil {
		return DefaultOverrideDir
	}
	return *s.OverrideDir
}

// GlobalObject returns the name of the object the namespaces are published on.
func (s *Bundle) GlobalObject() string {
	return cmp.Or(s.Global, DefaultGlobal)
}

// Instead of marshaling and unmarshaling as int64 it uses strings, like "5m" or "0.5s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	val, err := time.ParseDuration(str)
	*d = Duration(val)
	return err
}

func (d *Duration) UnmarshalYAML(bs []byte) error {
	var s string
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return err
	}
	val, err := time.ParseDuration(s)
	*d = Duration(val)
	return err
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (s *Bundle) UnmarshalJSON(bs []byte) error {
	type rawBundle Bundle // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawBundle

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode bundle: %w", err)
	}

	*s = Bundle(raw)
	return s.validate()
}

func (s *Bundle) UnmarshalYAML(bs []byte) error {
	type rawBundle Bundle // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawBundle

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode bundle: %w", err)
	}

	*s = Bundle(raw)
	return s.validate()
}

func (s *Bundle) validate() error {
	if s.Target == "" {
		return errors.New("bundle target is required")
	}

	if len(s.Directories) == 0 {
		return errors.New("bundle requires at least one directory")
	}

	patterns := slices.Clone(s.ExcludedFiles)
	for _, d := range s.Directories {
		if d.Path == "" {
			return errors.New("bundle directory path is required")
		}
		patterns = append(patterns, d.IncludedFiles...)
		patterns = append(patterns, d.ExcludedFiles...)
	}

	for _, pattern := range patterns {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("failed to compile file pattern %q: %w", pattern, err)
		}
	}

	for _, ns := range s.Namespaces {
		if !identifier.MatchString(ns) {
			return fmt.Errorf("namespace %q is not an identifier", ns)
		}
	}

	if s.Global != "" && !identifier.MatchString(s.Global) {
		return fmt.Errorf("global %q is not an identifier", s.Global)
	}

	if s.Interval < 0 {
		return errors.New("rebuild interval must not be negative")
	}

	return s.ObjectStorage.validate()
}

func (s *Bundle) Equal(other *Bundle) bool {
	return fastEqual(s, other, func(s, other *Bundle) bool {
		return s.Name == other.Name &&
			s.Target == other.Target &&
			s.SourceDir == other.SourceDir &&
			slices.EqualFunc(s.Directories, other.Directories, Directory.Equal) &&
			s.ExcludedFiles.Equal(other.ExcludedFiles) &&
			slices.Equal(s.Namespaces, other.Namespaces) &&
			slices.Equal(s.AllowedPrefixes, other.AllowedPrefixes) &&
			ptrEqual(s.OverrideDir, other.OverrideDir) &&
			s.Global == other.Global &&
			s.Minify == other.Minify &&
			s.Interval == other.Interval &&
			s.ObjectStorage.Equal(&other.ObjectStorage)
	})
}

type StringSet []string

func (a StringSet) Equal(b StringSet) bool {
	return setEqual(a, b, func(s string) string { return s }, func(a, b string) bool { return a == b })
}

type SecretRef struct {
	Name  string `json:"-"`
	value *Secret
}

// Resolve retrieves the secret value from the secret store. If the secret is not found, an error is returned.
func (s *SecretRef) Resolve() (any, error) {
	if s.value == nil {
		return nil, fmt.Errorf("secret %q not found", s.Name)
	}

	return s.value.Typed()
}

func (s *SecretRef) MarshalYAML() (any, error) {
	if s.Name == "" {
		return nil, nil
	}
	return s.Name, nil
}

func (s *SecretRef) MarshalJSON() ([]byte, error) {
	v, err := s.MarshalYAML()
	if err != nil {
		return nil, err
	}

	return json.Marshal(v)
}

func (s *SecretRef) UnmarshalYAML(bs []byte) error {
	if err := yaml.Unmarshal(bs, &s.Name); err != nil {
		return fmt.Errorf("expected scalar node: %w", err)
	}
	return nil
}

func (s *SecretRef) UnmarshalJSON(bs []byte) error {
	if err := json.Unmarshal(bs, &s.Name); err != nil {
		return fmt.Errorf("failed to unmarshal SecretRef: %w", err)
	}

	return nil
}

func (s *SecretRef) Equal(other *SecretRef) bool {
	return fastEqual(s, other, func(s, other *SecretRef) bool {
		return s.Name == other.Name && s.value.Equal(other.value)
	})
}

func ParseFile(filename string) (root *Root, err error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	root, err = Parse(bs)
	if err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(filepath.Dir(filename))
	if err != nil {
		return nil, err
	}
	root.ResolvePaths(dir)

	return root, nil
}

func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &root, nil
}

type ObjectStorage struct {
	AmazonS3          *AmazonS3          `json:"aws,omitempty"`
	GCPCloudStorage   *GCPCloudStorage   `json:"gcp,omitempty"`
	AzureBlobStorage  *AzureBlobStorage  `json:"azure,omitempty"`
	FileSystemStorage *FileSystemStorage `json:"filesystem,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Configured reports whether a storage backend is set.
func (o *ObjectStorage) Configured() bool {
	return o.AmazonS3 != nil || o.GCPCloudStorage != nil || o.AzureBlobStorage != nil || o.FileSystemStorage != nil
}

func (o *ObjectStorage) credentials() []*SecretRef {
	var refs []*SecretRef
	if o.AmazonS3 != nil && o.AmazonS3.Credentials != nil {
		refs = append(refs, o.AmazonS3.Credentials)
	}
	if o.GCPCloudStorage != nil && o.GCPCloudStorage.Credentials != nil {
		refs = append(refs, o.GCPCloudStorage.Credentials)
	}
	if o.AzureBlobStorage != nil && o.AzureBlobStorage.Credentials != nil {
		refs = append(refs, o.AzureBlobStorage.Credentials)
	}
	return refs
}

func (o *ObjectStorage) Equal(other *ObjectStorage) bool {
	return fastEqual(o, other, func(o, other *ObjectStorage) bool {
		return o.AmazonS3.Equal(other.AmazonS3) &&
			o.GCPCloudStorage.Equal(other.GCPCloudStorage) &&
			o.AzureBlobStorage.Equal(other.AzureBlobStorage) &&
			o.FileSystemStorage.Equal(other.FileSystemStorage)
	})
}

func (o *ObjectStorage) validate() error {
	n := 0
	for _, set := range []bool{o.AmazonS3 != nil, o.GCPCloudStorage != nil, o.AzureBlobStorage != nil, o.FileSystemStorage != nil} {
		if set {
			n++
		}
	}
	if n > 1 {
		return errors.New("at most one object storage backend may be configured")
	}

	if err := o.AmazonS3.validate(); err != nil {
		return err
	}
	if err := o.GCPCloudStorage.validate(); err != nil {
		return err
	}
	if err := o.AzureBlobStorage.validate(); err != nil {
		return err
	}
	return o.FileSystemStorage.validate()
}

// AmazonS3 defines the configuration for an Amazon S3-compatible object storage.
type AmazonS3 struct {
	Bucket      string     `json:"bucket"`
	Key         string     `json:"key"`
	Region      string     `json:"region,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// shared credentials file, ECS or EC2 instance role. Note, JSON schema validation overrides this to string type.
	URL string `json:"url,omitempty"` // for test purposes
}

// GCPCloudStorage defines the configuration for a Google Cloud Storage bucket.
type GCPCloudStorage struct {
	Project     string     `json:"project"`
	Bucket      string     `json:"bucket"`
	Object      string     `json:"object"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use application default credentials.
}

// AzureBlobStorage defines the configuration for an Azure Blob Storage container.
type AzureBlobStorage struct {
	AccountURL  string     `json:"account_url"`
	Container   string     `json:"container"`
	Path        string     `json:"path"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use the default Azure credential chain.
}

// FileSystemStorage defines the configuration for a local filesystem storage.
type FileSystemStorage struct {
	Path string `json:"path"` // Path to the published bundle on the local filesystem.
}

func (a *AmazonS3) Equal(other *AmazonS3) bool {
	return fastEqual(a, other, func(a, other *AmazonS3) bool {
		return a.Bucket == other.Bucket &&
			a.Key == other.Key &&
			a.Region == other.Region &&
			a.Credentials.Equal(other.Credentials) &&
			a.URL == other.URL
	})
}

func (a *AmazonS3) validate() error {
	if a == nil {
		return nil
	}

	if a.Bucket == "" {
		return errors.New("amazon s3 bucket is required")
	}

	if a.Key == "" {
		return errors.New("amazon s3 key is required")
	}

	if a.Region == "" {
		return errors.New("amazon s3 region is required")
	}

	return nil
}

func (g *GCPCloudStorage) Equal(other *GCPCloudStorage) bool {
	return fastEqual(g, other, func(g, other *GCPCloudStorage) bool {
		return g.Project == other.Project &&
			g.Bucket == other.Bucket &&
			g.Object == other.Object &&
			g.Credentials.Equal(other.Credentials)
	})
}

func (g *GCPCloudStorage) validate() error {
	if g == nil {
		return nil
	}

	if g.Project == "" {
		return errors.New("gcp cloud storage project is required")
	}

	if g.Bucket == "" {
		return errors.New("gcp cloud storage bucket is required")
	}

	if g.Object == "" {
		return errors.New("gcp cloud storage object is required")
	}

	return nil
}

func (a *AzureBlobStorage) Equal(other *AzureBlobStorage) bool {
	return fastEqual(a, other, func(a, other *AzureBlobStorage) bool {
		return a.AccountURL == other.AccountURL &&
			a.Container == other.Container &&
			a.Path == other.Path &&
			a.Credentials.Equal(other.Credentials)
	})
}

func (a *AzureBlobStorage) validate() error {
	if a == nil {
		return nil
	}

	if a.AccountURL == "" {
		return errors.New("azure blob storage account URL is required")
	}

	if a.Container == "" {
		return errors.New("azure blob storage container is required")
	}

	if a.Path == "" {
		return errors.New("azure blob storage path is required")
	}

	return nil
}

func (f *FileSystemStorage) Equal(other *FileSystemStorage) bool {
	return fastEqual(f, other, func(f, other *FileSystemStorage) bool {
		return f.Path == other.Path
	})
}

func (f *FileSystemStorage) validate() error {
	if f == nil {
		return nil
	}

	if f.Path == "" {
		return errors.New("filesystem storage path is required")
	}

	return nil
}

type Service struct {
	// Workers bounds the number of bundles built concurrently.
	Workers int `json:"workers,omitempty" minimum:"1"`

	// MetricsAddr is the listen address of the Prometheus endpoint in
	// continuous mode, for example ":9090".
	MetricsAddr string `json:"metrics_addr,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func setEqual[K comparable, V any](a, b []V, key func(V) K, eq func(a, b V) bool) bool {
	if len(a) == 1 && len(b) == 1 {
		return eq(a[0], b[0])
	}

	m := make(map[K]V, len(a))
	for _, v := range a {
		m[key(v)] = v
	}

	n := make(map[K]V, len(b))
	for _, v := range b {
		n[key(v)] = v
	}

	return maps.EqualFunc(m, n, eq)
}

func ptrEqual[T comparable](a, b *T) bool {
	return fastEqual(a, b, func(a, b *T) bool { return *a == *b })
}

func fastEqual[V any](a, b *V, slowEqual func(a, b *V) bool) bool {
	if a == b {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	return slowEqual(a, b)
}
