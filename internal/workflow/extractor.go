package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"schemalift/internal/common"
	"schemalift/internal/snowflake"
	"schemalift/pkg/errors"
)

// SchemaSource yields live schema contents. snowflake.Service implements
// it; tests substitute an in-memory fake.
type SchemaSource interface {
	ListSchemaObjects(ctx context.Context, database, schema string) ([]snowflake.ObjectRef, error)
	GetObjectDDL(ctx context.Context, ref snowflake.ObjectRef) (string, error)
	GetSchemaGrants(ctx context.Context, database, schema string) ([]snowflake.Grant, error)
}

// Extractor captures raw DDL into a run's working area. It never touches
// the tracked schema tree.
type Extractor struct {
	source  SchemaSource
	roleMap map[string]string
}

// NewExtractor creates an extractor over the given source. roleMap rewrites
// grantee role names during grant capture and may be nil.
func NewExtractor(source SchemaSource, roleMap map[string]string) *Extractor {
	return &Extractor{source: source, roleMap: roleMap}
}

// Extract enumerates every object in the schema, captures its DDL verbatim,
// and writes one file per object under workDir/raw plus a manifest. Objects
// are ordered by kind dependency rank then name, so an unchanged schema
// always extracts byte-identically. A schema with zero objects is a valid,
// empty result.
func (e *Extractor) Extract(ctx context.Context, database, schema, workDir string) ([]ExtractedObject, error) {
	refs, err := e.source.ListSchemaObjects(ctx, database, schema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConnectionFailed,
			fmt.Sprintf("failed to enumerate objects in %s.%s", database, schema))
	}

	sort.Slice(refs, func(i, j int) bool {
		if ri, rj := kindRank(refs[i].Kind), kindRank(refs[j].Kind); ri != rj {
			return ri < rj
		}
		return refs[i].Name < refs[j].Name
	})

	rawDir := filepath.Join(workDir, rawDirName)
	if err := os.MkdirAll(rawDir, common.DirPermissionNormal); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create raw directory")
	}

	var objects []ExtractedObject
	for i, ref := range refs {
		ddl, err := e.source.GetObjectDDL(ctx, ref)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConnectionFailed,
				fmt.Sprintf("failed to capture DDL for %s %s", ref.Kind, ref.FQN()))
		}

		obj, err := writeExtracted(rawDir, i, ref.Kind, ref.Name, ref.FQN(), ddl)
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}

	grants, err := e.source.GetSchemaGrants(ctx, database, schema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConnectionFailed,
			fmt.Sprintf("failed to capture grants for %s.%s", database, schema))
	}
	if len(grants) > 0 {
		text := e.renderGrants(grants, database, schema)
		obj, err := writeExtracted(rawDir, len(refs), "GRANTS", schema, fmt.Sprintf("%s.%s", database, schema), text)
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}

	if err := writeManifest(workDir, objects); err != nil {
		return nil, err
	}

	return objects, nil
}

// kind extraction order follows object dependencies so a later deploy can
// replay files in file-name order
var kindOrder = []string{
	"FILE FORMAT", "SEQUENCE", "STAGE", "TABLE", "VIEW",
	"MATERIALIZED VIEW", "DYNAMIC TABLE", "STREAM", "PIPE", "TASK", "GRANTS",
}

func kindRank(kind string) int {
	for i, k := range kindOrder {
		if k == kind {
			return i
		}
	}
	return len(kindOrder)
}

func writeExtracted(rawDir string, index int, kind, name, fqn, text string) (ExtractedObject, error) {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	file := fmt.Sprintf("%03d__%s__%s.sql",
		index,
		common.SanitizeFileName(strings.ReplaceAll(kind, " ", "_")),
		common.SanitizeFileName(name))

	if err := os.WriteFile(filepath.Join(rawDir, file), []byte(text), common.FilePermissionNormal); err != nil {
		return ExtractedObject{}, errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("failed to write extracted object %s", fqn))
	}

	sum := sha256.Sum256([]byte(text))
	return ExtractedObject{
		Kind:   kind,
		Name:   name,
		FQN:    fqn,
		File:   file,
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}

// renderGrants turns the schema's grants into replayable GRANT statements,
// applying the configured role map. Output order is deterministic.
func (e *Extractor) renderGrants(grants []snowflake.Grant, database, schema string) string {
	statements := make([]string, 0, len(grants))
	for _, g := range grants {
		grantee := g.Grantee
		if mapped, ok := e.roleMap[grantee]; ok {
			grantee = mapped
		}

		stmt := fmt.Sprintf("GRANT %s ON SCHEMA %s.%s TO %s %s",
			g.Privilege, database, schema, g.GrantedTo, grantee)
		if g.GrantOption {
			stmt += " WITH GRANT OPTION"
		}
		statements = append(statements, stmt+";")
	}
	sort.Strings(statements)
	return strings.Join(statements, "\n")
}

func writeManifest(workDir string, objects []ExtractedObject) error {
	if objects == nil {
		objects = []ExtractedObject{}
	}
	data, err := json.MarshalIndent(objects, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal manifest")
	}
	return atomicWrite(filepath.Join(workDir, manifestFileName), data)
}

// LoadManifest reads the extraction manifest from a working area
func LoadManifest(workDir string) ([]ExtractedObject, error) {
	data, err := os.ReadFile(filepath.Join(workDir, manifestFileName)) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileNotFound, "extraction manifest not found").
			WithSuggestions("Run the extract stage first")
	}

	var objects []ExtractedObject
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStateCorrupted, "extraction manifest is corrupted")
	}
	return objects, nil
}

// ReadObjectDDL returns the raw DDL text of one extracted object
func ReadObjectDDL(workDir string, obj ExtractedObject) (string, error) {
	data, err := os.ReadFile(filepath.Join(workDir, rawDirName, obj.File)) // #nosec G304
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeFileNotFound,
			fmt.Sprintf("raw DDL for %s not found", obj.FQN))
	}
	return string(data), nil
}
