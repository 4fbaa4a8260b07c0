// Package manifest loads property group migration manifests written in CUE
// and plans them into ordered schema-change statements.
//
// A manifest directory holds one CUE package. Each migration is a field of
// the top-level `migration` struct:
//
//	package migrations
//
//	migration: "0075_add_custom_and_features_property_groups_events": {
//		order: 75
//		steps: [
//			{table: "sharded_events", group: "custom"},
//			{table: "sharded_events", group: "feature_flags"},
//		]
//	}
//
// Steps default to action "create"; "drop" emits the reverse statements.
// Migrations are planned by ascending order, then name.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// Step actions.
const (
	ActionCreate = "create"
	ActionDrop   = "drop"
)

// schemaCUE constrains every migration before it is decoded.
const schemaCUE = `
#Step: {
	table:   string & =~"^[A-Za-z_][A-Za-z0-9_]*(\\.[A-Za-z_][A-Za-z0-9_]*)?$"
	group:   string & =~"^[A-Za-z_][A-Za-z0-9_]*$"
	action?: "create" | "drop"
}

#Migration: {
	order: int & >=0
	steps: [#Step, ...#Step]
}
`

// Step is one group materialization (or removal) within a migration.
type Step struct {
	Table  string `json:"table"`
	Group  string `json:"group"`
	Action string `json:"action,omitempty"`
}

// Migration is a named, ordered list of steps.
type Migration struct {
	Name  string    `json:"name"`
	Order int       `json:"order"`
	Steps []Step    `json:"steps"`
	Pos   token.Pos `json:"-"`
}

// LoadResult contains the migrations found in a manifest directory.
type LoadResult struct {
	Migrations []Migration
	CUEValue   cue.Value
	FileCount  int
}

// Error code constants.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeScanError    = "E002" // Directory scan error
	ErrCodeNoFiles      = "E003" // No CUE files found
	ErrCodeLoadFailed   = "E004" // CUE load failed
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBuildFailed  = "E006" // CUE build failed
	ErrCodeInvalid      = "E010" // Migration does not match schema
	ErrCodeNoMigrations = "E011" // No migrations declared
)

// LoadError represents an error that occurred while loading manifests.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads every migration in dir. All invalid migrations are reported;
// valid ones are still returned in the result.
func Load(dir string) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing manifest directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Migration"))
	if err := schema.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("manifest schema: %v", err)}}
	}

	result := &LoadResult{CUEValue: value, FileCount: len(cueFiles)}
	var errs []error

	migrationsVal := value.LookupPath(cue.ParsePath("migration"))
	if migrationsVal.Exists() {
		iter, err := migrationsVal.Fields()
		if err != nil {
			return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating migrations: %v", err)}}
		}
		for iter.Next() {
			m, err := decodeMigration(schema, iter.Label(), iter.Value())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			result.Migrations = append(result.Migrations, *m)
		}
	}

	if len(result.Migrations) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoMigrations, Message: "no migrations found in manifests"})
	}

	return result, errs
}

func decodeMigration(schema cue.Value, name string, v cue.Value) (*Migration, error) {
	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{
			Code:    ErrCodeInvalid,
			Message: fmt.Sprintf("migration %q: %v", name, err),
			Pos:     v.Pos(),
		}
	}

	var m Migration
	if err := unified.Decode(&m); err != nil {
		return nil, &LoadError{
			Code:    ErrCodeInvalid,
			Message: fmt.Sprintf("migration %q: %v", name, err),
			Pos:     v.Pos(),
		}
	}
	m.Name = name
	m.Pos = v.Pos()
	for i := range m.Steps {
		if m.Steps[i].Action == "" {
			m.Steps[i].Action = ActionCreate
		}
	}
	return &m, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
