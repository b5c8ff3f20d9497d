package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/nexus/internal/labelcache"
	"github.com/marmos91/nexus/internal/logger"
	"github.com/marmos91/nexus/internal/metrics"
	"github.com/marmos91/nexus/internal/store"
	"github.com/marmos91/nexus/internal/telemetry"
	"github.com/marmos91/nexus/pkg/nexus"
	"github.com/marmos91/nexus/pkg/target"
)

// Manager is the subset of internal/nexusmanager.Manager the Control Plane
// API depends on, kept narrow so handlers can be tested against a fake.
type Manager interface {
	Get(name string) (*nexus.Controller, bool)
	Create(ctx context.Context, name string, size uint64) (*nexus.Controller, error)
	Remove(name string)
	Metrics() *metrics.NexusMetrics
	Store() *store.Store
	LabelCache() *labelcache.Cache
	Targets() *target.Manager
}

// NexusHandler implements the routes of SPEC_FULL.md §4.6, translating HTTP
// requests into Controller operations and Controller errors into RFC 7807
// problem responses.
type NexusHandler struct {
	mgr Manager
}

// NewNexusHandler constructs a NexusHandler over mgr.
func NewNexusHandler(mgr Manager) *NexusHandler {
	return &NexusHandler{mgr: mgr}
}

// span wraps a handler body in an OpenTelemetry "controller.op" span tagged
// with nexus.operation=<op> and nexus.name, and
// records the outcome in both the span and the Prometheus counters, the way
// SPEC_FULL.md §4.9 requires every Controller operation to be observed.
func (h *NexusHandler) span(r *http.Request, op, name string, fn func(ctx context.Context) error) (context.Context, error) {
	ctx, sp := telemetry.StartControllerSpan(r.Context(), op, name)
	defer sp.End()

	start := time.Now()
	err := fn(ctx)
	result := "ok"
	if err != nil {
		telemetry.RecordError(ctx, err)
		result = "error"
	}
	h.mgr.Metrics().ObserveMembershipOp(op, result)
	if err == nil && reconfiguringOps[op] {
		h.mgr.Metrics().ObserveReconfigure(name, time.Since(start))
	}
	return ctx, err
}

// reconfiguringOps are the membership operations that publish a
// reconfiguration event to every per-worker channel (§4.2); their duration
// is what nexus_reconfigure_seconds measures.
var reconfiguringOps = map[string]bool{
	"add_child":     true,
	"remove_child":  true,
	"offline_child": true,
	"online_child":  true,
	"fault_child":   true,
}

func (h *NexusHandler) controller(w http.ResponseWriter, name string) (*nexus.Controller, bool) {
	ctrl, ok := h.mgr.Get(name)
	if !ok {
		WriteProblem(w, http.StatusNotFound, "Not Found", "no such nexus: "+name)
		return nil, false
	}
	return ctrl, true
}

func toDTO(snap nexus.Nexus) NexusDTO {
	children := make([]ChildDTO, len(snap.Children))
	for i, c := range snap.Children {
		children[i] = ChildDTO{Name: c.Name, ParentName: c.ParentName, State: c.State.String()}
	}
	return NexusDTO{
		Name:              snap.Name,
		Size:              snap.Size,
		State:             snap.State.String(),
		BlockLen:          snap.BlockLen,
		RequiredAlignment: snap.RequiredAlignment,
		Children:          children,
	}
}

// Create handles PUT /v1/nexuses/{name}: creates a brand-new Nexus Init
// state. This endpoint is not named directly in SPEC_FULL.md's route table
// (which starts from an existing Nexus) but is required to create the
// Nexus the table's routes then operate on.
func (h *NexusHandler) Create(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req CreateNexusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if _, err := h.mgr.Create(r.Context(), name, req.Size); err != nil {
		WriteError(w, "create", err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{"name": name})
}

// Show handles GET /v1/nexuses/{name}: a read-only topology snapshot.
func (h *NexusHandler) Show(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctrl, ok := h.controller(w, name)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, toDTO(ctrl.Snapshot()))
}

// RegisterChildren handles POST /v1/nexuses/{name}/children.
func (h *NexusHandler) RegisterChildren(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctrl, ok := h.controller(w, name)
	if !ok {
		return
	}
	var req RegisterChildrenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	_, err := h.span(r, "register_children", name, func(ctx context.Context) error {
		return ctrl.RegisterChildren(ctx, req.URIs)
	})
	if err != nil {
		WriteError(w, "register_children", err)
		return
	}
	h.persistTopology(r.Context(), name, ctrl)
	WriteJSON(w, http.StatusOK, toDTO(ctrl.Snapshot()))
}

// persistTopology writes every current child of ctrl's Nexus to the
// Topology Store, per SPEC_FULL.md §4.7: a best-effort write-through after
// the in-memory mutation has already committed. A nil Store (persistence
// disabled) is a no-op.
func (h *NexusHandler) persistTopology(ctx context.Context, nexusName string, ctrl *nexus.Controller) {
	st := h.mgr.Store()
	if st == nil {
		return
	}
	snap := ctrl.Snapshot()
	for _, c := range snap.Children {
		st.SaveChild(ctx, nexusName, c.Name, c.ParentName, c.State.String())
	}
}

// Open handles POST /v1/nexuses/{name}/open.
func (h *NexusHandler) Open(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctrl, ok := h.controller(w, name)
	if !ok {
		return
	}
	_, err := h.span(r, "try_open_children", name, func(ctx context.Context) error {
		return ctrl.TryOpenChildren(ctx)
	})
	if err != nil {
		WriteError(w, "try_open_children", err)
		return
	}
	h.mgr.Metrics().SetState(name, int(ctrl.Snapshot().State))
	h.persistTopology(r.Context(), name, ctrl)

	// spec.md §6: the Nexus invokes the Front-end Target collaborator
	// after reaching Open, before any client can address it.
	if targets := h.mgr.Targets(); targets != nil {
		if _, uri, err := targets.Share(r.Context(), name); err != nil {
			logger.ErrorCtx(r.Context(), "target share failed", "nexus", name, "error", err)
		} else {
			logger.InfoCtx(r.Context(), "nexus shared", "nexus", name, "uri", uri)
		}
	}
	WriteJSON(w, http.StatusOK, toDTO(ctrl.Snapshot()))
}

// AddChild handles POST /v1/nexuses/{name}/children/{uri}.
func (h *NexusHandler) AddChild(w http.ResponseWriter, r *http.Request) {
	name, uri := chi.URLParam(r, "name"), chi.URLParam(r, "uri")
	ctrl, ok := h.controller(w, name)
	if !ok {
		return
	}
	_, err := h.span(r, "add_child", name, func(ctx context.Context) error {
		return ctrl.AddChild(ctx, uri)
	})
	if err != nil {
		WriteError(w, "add_child", err)
		return
	}
	h.observeSnapshot(name, ctrl)
	h.persistTopology(r.Context(), name, ctrl)
	WriteJSON(w, http.StatusOK, toDTO(ctrl.Snapshot()))
}

// RemoveChild handles DELETE /v1/nexuses/{name}/children/{uri}.
func (h *NexusHandler) RemoveChild(w http.ResponseWriter, r *http.Request) {
	name, uri := chi.URLParam(r, "name"), chi.URLParam(r, "uri")
	ctrl, ok := h.controller(w, name)
	if !ok {
		return
	}
	_, err := h.span(r, "remove_child", name, func(ctx context.Context) error {
		return ctrl.RemoveChild(ctx, uri)
	})
	if err != nil {
		WriteError(w, "remove_child", err)
		return
	}
	h.observeSnapshot(name, ctrl)
	if st := h.mgr.Store(); st != nil {
		st.DeleteChild(r.Context(), name, uri)
	}
	if cache := h.mgr.LabelCache(); cache != nil {
		if err := cache.Invalidate(r.Context(), uri); err != nil {
			logger.ErrorCtx(r.Context(), "label cache invalidate failed", "uri", uri, "error", err)
		}
	}
	WriteNoContent(w)
}

// OfflineChild handles POST /v1/nexuses/{name}/children/{uri}/offline.
func (h *NexusHandler) OfflineChild(w http.ResponseWriter, r *http.Request) {
	name, uri := chi.URLParam(r, "name"), chi.URLParam(r, "uri")
	ctrl, ok := h.controller(w, name)
	if !ok {
		return
	}
	_, err := h.span(r, "offline_child", name, func(ctx context.Context) error {
		return ctrl.OfflineChild(ctx, uri)
	})
	if err != nil {
		WriteError(w, "offline_child", err)
		return
	}
	h.observeSnapshot(name, ctrl)
	h.persistTopology(r.Context(), name, ctrl)
	if cache := h.mgr.LabelCache(); cache != nil {
		if err := cache.Invalidate(r.Context(), uri); err != nil {
			logger.ErrorCtx(r.Context(), "label cache invalidate failed", "uri", uri, "error", err)
		}
	}
	WriteJSON(w, http.StatusOK, toDTO(ctrl.Snapshot()))
}

// OnlineChild handles POST /v1/nexuses/{name}/children/{uri}/online.
func (h *NexusHandler) OnlineChild(w http.ResponseWriter, r *http.Request) {
	name, uri := chi.URLParam(r, "name"), chi.URLParam(r, "uri")
	ctrl, ok := h.controller(w, name)
	if !ok {
		return
	}
	_, err := h.span(r, "online_child", name, func(ctx context.Context) error {
		return ctrl.OnlineChild(ctx, uri)
	})
	if err != nil {
		WriteError(w, "online_child", err)
		return
	}
	h.observeSnapshot(name, ctrl)
	h.persistTopology(r.Context(), name, ctrl)
	WriteJSON(w, http.StatusOK, toDTO(ctrl.Snapshot()))
}

// FaultChild handles POST /v1/nexuses/{name}/children/{uri}/fault.
func (h *NexusHandler) FaultChild(w http.ResponseWriter, r *http.Request) {
	name, uri := chi.URLParam(r, "name"), chi.URLParam(r, "uri")
	ctrl, ok := h.controller(w, name)
	if !ok {
		return
	}
	_, err := h.span(r, "fault_child", name, func(ctx context.Context) error {
		return ctrl.FaultChild(ctx, uri)
	})
	if err != nil {
		WriteError(w, "fault_child", err)
		return
	}
	h.observeSnapshot(name, ctrl)
	h.persistTopology(r.Context(), name, ctrl)
	if cache := h.mgr.LabelCache(); cache != nil {
		if err := cache.Invalidate(r.Context(), uri); err != nil {
			logger.ErrorCtx(r.Context(), "label cache invalidate failed", "uri", uri, "error", err)
		}
	}
	WriteJSON(w, http.StatusOK, toDTO(ctrl.Snapshot()))
}

// Labels handles GET /v1/nexuses/{name}/labels.
func (h *NexusHandler) Labels(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctrl, ok := h.controller(w, name)
	if !ok {
		return
	}

	openURIs := openChildURIs(ctrl.Snapshot())
	if cache := h.mgr.LabelCache(); cache != nil {
		if cached, fresh := cache.AllFresh(r.Context(), openURIs); fresh {
			WriteJSON(w, http.StatusOK, LabelResponse{Label: cached})
			return
		}
	}

	var label nexus.NexusLabel
	_, err := h.span(r, "update_child_labels", name, func(ctx context.Context) error {
		var opErr error
		label, opErr = ctrl.UpdateChildLabels(ctx)
		return opErr
	})
	if err != nil {
		WriteError(w, "update_child_labels", err)
		return
	}

	if cache := h.mgr.LabelCache(); cache != nil {
		for _, uri := range openURIs {
			spanCtx, sp := telemetry.StartLabelProbeSpan(r.Context(), uri)
			err := cache.Put(spanCtx, uri, label.String())
			if err != nil {
				telemetry.RecordError(spanCtx, err)
				logger.ErrorCtx(spanCtx, "label cache put failed", "uri", uri, "error", err)
			}
			sp.End()
		}
	}
	WriteJSON(w, http.StatusOK, LabelResponse{Label: label.String()})
}

// openChildURIs returns the URIs of every currently Open child, the set
// update_child_labels actually probes.
func openChildURIs(snap nexus.Nexus) []string {
	uris := make([]string, 0, len(snap.Children))
	for _, c := range snap.Children {
		if c.State == nexus.ChildOpen {
			uris = append(uris, c.Name)
		}
	}
	return uris
}

// Destroy handles DELETE /v1/nexuses/{name}.
func (h *NexusHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctrl, ok := h.controller(w, name)
	if !ok {
		return
	}

	// spec.md §6: unshare before any owned handle can be invalidated.
	if targets := h.mgr.Targets(); targets != nil {
		if err := targets.UnshareNexus(r.Context(), name); err != nil {
			logger.ErrorCtx(r.Context(), "target unshare failed", "nexus", name, "error", err)
		}
	}

	_, err := h.span(r, "destroy_children", name, func(ctx context.Context) error {
		return ctrl.DestroyChildren(ctx)
	})
	if err != nil {
		WriteError(w, "destroy_children", err)
		return
	}
	h.mgr.Remove(name)
	WriteNoContent(w)
}

func (h *NexusHandler) observeSnapshot(name string, ctrl *nexus.Controller) {
	snap := ctrl.Snapshot()
	h.mgr.Metrics().SetState(name, int(snap.State))
	h.mgr.Metrics().SetChildCount(name, snap.ChildCount())
}
