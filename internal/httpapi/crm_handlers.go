package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"nexushub.org/internal/audit"
	"nexushub.org/internal/auth"
	"nexushub.org/internal/crm"
)

type contactRequest struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	CompanyID string   `json:"company_id"`
	Tags      []string `json:"tags"`
}

type contactUpdateRequest struct {
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
	Email     *string   `json:"email"`
	Phone     *string   `json:"phone"`
	CompanyID *string   `json:"company_id"`
	Tags      *[]string `json:"tags"`
}

type companyRequest struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Industry string `json:"industry"`
	Size     string `json:"size"`
}

type companyUpdateRequest struct {
	Name     *string `json:"name"`
	Domain   *string `json:"domain"`
	Industry *string `json:"industry"`
	Size     *string `json:"size"`
}

func (a *API) handleContacts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		principal, ok := a.requirePermission(w, r, auth.PermContactRead)
		if !ok {
			return
		}
		skip, err := parsePositiveInt(r.URL.Query().Get("skip"), 0, 0, 1<<30)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "skip "+err.Error())
			return
		}
		limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 50, 1, 100)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "limit "+err.Error())
			return
		}
		contacts, err := a.crm.ListContacts(r.Context(), principal, crm.ContactFilter{
			Search:    r.URL.Query().Get("search"),
			CompanyID: r.URL.Query().Get("company_id"),
			OwnerID:   r.URL.Query().Get("owner_id"),
			Skip:      skip,
			Limit:     limit,
		})
		if err != nil {
			handleCRMError(w, r, err)
			return
		}
		if contacts == nil {
			contacts = []*crm.Contact{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts})

	case http.MethodPost:
		principal, ok := a.requirePermission(w, r, auth.PermContactWrite)
		if !ok {
			return
		}
		var req contactRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		contact, err := a.crm.CreateContact(r.Context(), principal, crm.Contact{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Phone:     req.Phone,
			CompanyID: req.CompanyID,
			Tags:      req.Tags,
		})
		if err != nil {
			handleCRMError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "crm.contact.create", map[string]any{
			"contact_id": contact.ID,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/contacts/%s", contact.ID))
		writeJSON(w, http.StatusCreated, contact)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleContactItem(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/contacts/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		principal, ok := a.requirePermission(w, r, auth.PermContactRead)
		if !ok {
			return
		}
		contact, err := a.crm.GetContact(r.Context(), principal, id)
		if err != nil {
			handleCRMError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, contact)

	case http.MethodPatch:
		principal, ok := a.requirePermission(w, r, auth.PermContactWrite)
		if !ok {
			return
		}
		var req contactUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		contact, err := a.crm.UpdateContact(r.Context(), principal, id, crm.ContactUpdate{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Phone:     req.Phone,
			CompanyID: req.CompanyID,
			Tags:      req.Tags,
		})
		if err != nil {
			handleCRMError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "crm.contact.update", map[string]any{
			"contact_id": contact.ID,
		})
		writeJSON(w, http.StatusOK, contact)

	case http.MethodDelete:
		principal, ok := a.requirePermission(w, r, auth.PermContactDelete)
		if !ok {
			return
		}
		if err := a.crm.DeleteContact(r.Context(), principal, id); err != nil {
			handleCRMError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "crm.contact.delete", map[string]any{
			"contact_id": id,
		})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleCompanies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		principal, ok := a.requirePermission(w, r, auth.PermCompanyRead)
		if !ok {
			return
		}
		skip, err := parsePositiveInt(r.URL.Query().Get("skip"), 0, 0, 1<<30)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "skip "+err.Error())
			return
		}
		limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 50, 1, 100)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "limit "+err.Error())
			return
		}
		companies, err := a.crm.ListCompanies(r.Context(), principal, crm.CompanyFilter{
			Search:   r.URL.Query().Get("search"),
			Industry: r.URL.Query().Get("industry"),
			Skip:     skip,
			Limit:    limit,
		})
		if err != nil {
			handleCRMError(w, r, err)
			return
		}
		if companies == nil {
			companies = []*crm.Company{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"companies": companies})

	case http.MethodPost:
		principal, ok := a.requirePermission(w, r, auth.PermCompanyWrite)
		if !ok {
			return
		}
		var req companyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		company, err := a.crm.CreateCompany(r.Context(), principal, crm.Company{
			Name:     req.Name,
			Domain:   req.Domain,
			Industry: req.Industry,
			Size:     req.Size,
		})
		if err != nil {
			handleCRMError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "crm.company.create", map[string]any{
			"company_id": company.ID,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/companies/%s", company.ID))
		writeJSON(w, http.StatusCreated, company)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCompanyItem(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/companies/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		principal, ok := a.requirePermission(w, r, auth.PermCompanyRead)
		if !ok {
			return
		}
		company, err := a.crm.GetCompany(r.Context(), principal, id)
		if err != nil {
			handleCRMError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, company)

	case http.MethodPatch:
		principal, ok := a.requirePermission(w, r, auth.PermCompanyWrite)
		if !ok {
			return
		}
		var req companyUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		company, err := a.crm.UpdateCompany(r.Context(), principal, id, crm.CompanyUpdate{
			Name:     req.Name,
			Domain:   req.Domain,
			Industry: req.Industry,
			Size:     req.Size,
		})
		if err != nil {
			handleCRMError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "crm.company.update", map[string]any{
			"company_id": company.ID,
		})
		writeJSON(w, http.StatusOK, company)

	case http.MethodDelete:
		principal, ok := a.requirePermission(w, r, auth.PermCompanyDelete)
		if !ok {
			return
		}
		if err := a.crm.DeleteCompany(r.Context(), principal, id); err != nil {
			handleCRMError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "crm.company.delete", map[string]any{
			"company_id": id,
		})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func handleCRMError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, crm.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, crm.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
