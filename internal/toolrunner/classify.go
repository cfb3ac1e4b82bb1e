package toolrunner

import (
	"strings"

	"glbopt/internal/services"
)

// FailureKind identifies a recognized external-tool failure signature.
type FailureKind string

const (
	KindOutOfMemory       FailureKind = "out_of_memory"
	KindUnsupportedFormat FailureKind = "unsupported_format"
	KindTextureFailure    FailureKind = "texture_failure"
	KindMeshFailure       FailureKind = "mesh_failure"
	KindPermission        FailureKind = "permission"
	KindToolMissing       FailureKind = "tool_missing"
	KindGeneric           FailureKind = "generic"
)

// Signature is a classified tool failure: a user-safe message plus the error
// marker the stage should carry.
type Signature struct {
	Kind        FailureKind
	UserMessage string
	Marker      error
}

// signatureTable maps known stderr fragments to classified failures. Order
// matters: the first match wins.
var signatureTable = []struct {
	fragments []string
	sig       Signature
}{
	{
		fragments: []string{"out of memory", "cannot allocate memory", "oom-kill", "allocation failed", "heap limit"},
		sig:       Signature{Kind: KindOutOfMemory, UserMessage: "The tool ran out of memory processing this model", Marker: services.ErrExternalTool},
	},
	{
		fragments: []string{"unsupported format", "unknown format", "not a gltf", "invalid gltf", "unexpected magic", "could not parse"},
		sig:       Signature{Kind: KindUnsupportedFormat, UserMessage: "The model format is not supported by this tool", Marker: services.ErrExternalTool},
	},
	{
		fragments: []string{"ktx", "basisu", "texture", "etc1s", "uastc", "image decode"},
		sig:       Signature{Kind: KindTextureFailure, UserMessage: "Texture compression failed for this model", Marker: services.ErrExternalTool},
	},
	{
		fragments: []string{"draco", "meshopt", "quantization", "simplify", "mesh compression"},
		sig:       Signature{Kind: KindMeshFailure, UserMessage: "Mesh compression failed for this model", Marker: services.ErrExternalTool},
	},
	{
		fragments: []string{"permission denied", "operation not permitted", "read-only file system"},
		sig:       Signature{Kind: KindPermission, UserMessage: "The tool was denied filesystem access", Marker: services.ErrIO},
	},
	{
		fragments: []string{"command not found", "no such file or directory: ", "executable file not found"},
		sig:       Signature{Kind: KindToolMissing, UserMessage: "A required tool is not installed", Marker: services.ErrToolMissing},
	},
}

// Classify matches tool output against the known failure signatures.
func Classify(output string) Signature {
	lowered := strings.ToLower(output)
	for _, entry := range signatureTable {
		for _, fragment := range entry.fragments {
			if strings.Contains(lowered, fragment) {
				return entry.sig
			}
		}
	}
	return Signature{Kind: KindGeneric, UserMessage: "The tool reported an error", Marker: services.ErrExternalTool}
}
