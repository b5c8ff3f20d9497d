package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RegisterChildrenRequest is the body of POST /v1/nexuses/{name}/children.
type RegisterChildrenRequest struct {
	URIs []string `json:"uris" validate:"required,min=1,dive,required"`
}

// CreateNexusRequest is the body of PUT /v1/nexuses/{name}.
type CreateNexusRequest struct {
	Size uint64 `json:"size" validate:"required,gt=0"`
}

// ChildDTO is the wire representation of a single Child, the only shape of
// a Child that ever crosses the HTTP boundary.
type ChildDTO struct {
	Name       string `json:"name"`
	ParentName string `json:"parent_name"`
	State      string `json:"state"`
}

// NexusDTO is the wire representation of a Nexus topology snapshot.
type NexusDTO struct {
	Name              string     `json:"name"`
	Size              uint64     `json:"size"`
	State             string     `json:"state"`
	BlockLen          uint32     `json:"block_len"`
	RequiredAlignment uint32     `json:"required_alignment"`
	Children          []ChildDTO `json:"children"`
}

// LabelResponse is the body returned by GET /v1/nexuses/{name}/labels.
type LabelResponse struct {
	Label string `json:"label"`
}

// decodeAndValidate reads a JSON body into dst and validates it with
// go-playground/validator struct tags. Writes a 400 problem response and
// returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteProblem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		WriteProblem(w, http.StatusBadRequest, "Bad Request", "validation failed: "+err.Error())
		return false
	}
	return true
}
