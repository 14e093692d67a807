package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"amanat.org/internal/auth"
	"amanat.org/internal/escrow"
	"amanat.org/internal/obs"
)

type createOrganizationRequest struct {
	Name        string      `json:"name"`
	Description escrow.Hash `json:"description"`
}

type addCampaignRequest struct {
	Name         string      `json:"name"`
	Description  escrow.Hash `json:"description"`
	TargetAmount int64       `json:"target_amount"`
	Timeline     int64       `json:"timeline"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type scoreRequest struct {
	Score int64 `json:"score"`
}

type verificationRequest struct {
	BaseScore int64 `json:"base_score"`
}

type gracePeriodRequest struct {
	Seconds int64 `json:"seconds"`
}

type listResponse[T any] struct {
	Items    []T     `json:"items"`
	NextFrom *uint64 `json:"next_from"`
}

func caller(r *http.Request) escrow.Identity {
	id, _ := auth.UserIDFromContext(r.Context())
	return escrow.Identity(id)
}

func pathID(w http.ResponseWriter, r *http.Request, key string) (escrow.ID, bool) {
	id, err := escrow.ParseID(chi.URLParam(r, key))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, key+": "+err.Error())
		return escrow.ID{}, false
	}
	return id, true
}

func pathCampaign(w http.ResponseWriter, r *http.Request) (org, campaign escrow.ID, ok bool) {
	if org, ok = pathID(w, r, "orgID"); !ok {
		return
	}
	campaign, ok = pathID(w, r, "campaignID")
	return
}

// respond records the operation outcome and writes either the value or the error.
func respond(w http.ResponseWriter, r *http.Request, op string, code int, v any, err error) {
	obs.ObserveOp(op, obs.Outcome(err))
	if err != nil {
		handleEscrowError(w, r, err)
		return
	}
	writeJSON(w, code, v)
}

func (a *API) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.engine.CreateOrganization(r.Context(), caller(r), req.Name, req.Description)
	respond(w, r, "create_organization", http.StatusCreated, org, err)
}

func (a *API) listOrganizations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 50, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var from uint64
	if raw := q.Get("from"); raw != "" {
		if from, err = strconv.ParseUint(raw, 10, 64); err != nil {
			writeError(w, r, http.StatusBadRequest, "from must be a non-negative integer")
			return
		}
	}
	orgs, err := a.engine.Organizations(r.Context(), from, limit)
	resp := listResponse[escrow.Organization]{Items: orgs}
	if len(orgs) == limit {
		next := orgs[len(orgs)-1].Index + 1
		resp.NextFrom = &next
	}
	if resp.Items == nil {
		resp.Items = []escrow.Organization{}
	}
	respond(w, r, "list_organizations", http.StatusOK, resp, err)
}

func (a *API) getOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}
	org, err := a.engine.Organization(r.Context(), id)
	respond(w, r, "get_organization", http.StatusOK, org, err)
}

func (a *API) organizationIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}
	idx, err := a.engine.OrganizationIndex(r.Context(), id)
	respond(w, r, "organization_index", http.StatusOK, map[string]any{"index": idx}, err)
}

func (a *API) isOrganizationCreator(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}
	identity := escrow.Identity(chi.URLParam(r, "identity"))
	is, err := a.engine.IsOrganizationCreator(r.Context(), id, identity)
	respond(w, r, "is_organization_creator", http.StatusOK, map[string]any{
		"organization_id": id,
		"identity":        identity,
		"is_creator":      is,
	}, err)
}

func (a *API) updateTrustScore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}
	var req scoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.engine.UpdateTrustScore(r.Context(), caller(r), id, req.Score)
	respond(w, r, "update_trust_score", http.StatusOK, org, err)
}

func (a *API) verifyOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}
	var req verificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.engine.VerifyOrganization(r.Context(), caller(r), id, req.BaseScore)
	respond(w, r, "verify_organization", http.StatusOK, org, err)
}

func (a *API) addCampaign(w http.ResponseWriter, r *http.Request) {
	org, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}
	var req addCampaignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.engine.AddCampaign(r.Context(), caller(r), org, req.Name, req.Description, req.TargetAmount, req.Timeline)
	respond(w, r, "add_campaign", http.StatusCreated, c, err)
}

func (a *API) listCampaigns(w http.ResponseWriter, r *http.Request) {
	org, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}
	list, err := a.engine.Campaigns(r.Context(), org)
	if list == nil {
		list = []escrow.CampaignStatus{}
	}
	respond(w, r, "list_campaigns", http.StatusOK, listResponse[escrow.CampaignStatus]{Items: list}, err)
}

func (a *API) getCampaign(w http.ResponseWriter, r *http.Request) {
	org, campaign, ok := pathCampaign(w, r)
	if !ok {
		return
	}
	st, err := a.engine.CampaignStatus(r.Context(), org, campaign)
	respond(w, r, "get_campaign", http.StatusOK, st, err)
}

func (a *API) campaignIndex(w http.ResponseWriter, r *http.Request) {
	org, campaign, ok := pathCampaign(w, r)
	if !ok {
		return
	}
	idx, err := a.engine.CampaignIndex(r.Context(), org, campaign)
	respond(w, r, "campaign_index", http.StatusOK, map[string]any{"index": idx}, err)
}

func (a *API) contribute(w http.ResponseWriter, r *http.Request) {
	org, campaign, ok := pathCampaign(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.engine.Contribute(r.Context(), caller(r), org, campaign, req.Amount)
	respond(w, r, "contribute", http.StatusCreated, res, err)
}

func (a *API) withdrawDonation(w http.ResponseWriter, r *http.Request) {
	org, campaign, ok := pathCampaign(w, r)
	if !ok {
		return
	}
	res, err := a.engine.WithdrawDonation(r.Context(), caller(r), org, campaign)
	respond(w, r, "withdraw_donation", http.StatusOK, res, err)
}

func (a *API) withdrawFunds(w http.ResponseWriter, r *http.Request) {
	org, campaign, ok := pathCampaign(w, r)
	if !ok {
		return
	}
	res, err := a.engine.WithdrawFunds(r.Context(), caller(r), org, campaign)
	respond(w, r, "withdraw_funds", http.StatusOK, res, err)
}

func (a *API) getDonation(w http.ResponseWriter, r *http.Request) {
	campaign, ok := pathID(w, r, "campaignID")
	if !ok {
		return
	}
	donor := escrow.Identity(chi.URLParam(r, "donor"))
	amount, err := a.engine.Donation(r.Context(), campaign, donor)
	respond(w, r, "get_donation", http.StatusOK, map[string]any{
		"campaign_id": campaign,
		"donor":       donor,
		"amount":      amount,
	}, err)
}

func (a *API) getGracePeriod(w http.ResponseWriter, r *http.Request) {
	d, err := a.engine.GracePeriod(r.Context())
	respond(w, r, "get_grace_period", http.StatusOK, gracePeriodRequest{Seconds: int64(d.Seconds())}, err)
}

func (a *API) updateGracePeriod(w http.ResponseWriter, r *http.Request) {
	var req gracePeriodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	d, err := a.engine.UpdateGracePeriod(r.Context(), caller(r), req.Seconds)
	respond(w, r, "update_grace_period", http.StatusOK, gracePeriodRequest{Seconds: int64(d.Seconds())}, err)
}

func (a *API) getBalance(w http.ResponseWriter, r *http.Request) {
	identity := escrow.Identity(chi.URLParam(r, "identity"))
	bal, err := a.engine.Balance(r.Context(), identity)
	respond(w, r, "get_balance", http.StatusOK, map[string]any{
		"identity": identity,
		"balance":  bal,
	}, err)
}

func (a *API) rejectTransfer(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	_ = decodeJSON(w, r, &req)
	err := a.engine.RejectDirectTransfer(r.Context(), caller(r), req.Amount)
	respond(w, r, "direct_transfer", http.StatusOK, nil, err)
}
