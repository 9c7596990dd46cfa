package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/team-calendar/backend/internal/acl"
	"github.com/team-calendar/backend/internal/api/middleware"
)

// ShareRequest is the body of POST /calendars/{id}/acl.
type ShareRequest struct {
	Grantee string `json:"grantee"`
	Role    string `json:"role"`
}

// ShareCalendar grants a role on a calendar.
func ShareCalendar(eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !authorize(w, r, eval, id, acl.RoleOwner) {
			return
		}

		var req ShareRequest
		if !decodeBody(w, r, &req) {
			return
		}
		role, err := acl.ParseRole(req.Role)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}

		rule, err := eval.Share(r.Context(), id, req.Grantee, role)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rule)
	}
}

// ListACL returns the rules on a calendar.
func ListACL(eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !authorize(w, r, eval, id, acl.RoleOwner) {
			return
		}

		rules, err := eval.List(r.Context(), id)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rules)
	}
}

// RevokeACL deletes a rule.
func RevokeACL(eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		if !authorize(w, r, eval, vars["id"], acl.RoleOwner) {
			return
		}

		ruleID, err := strconv.ParseInt(vars["ruleID"], 10, 64)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid rule ID")
			return
		}

		if err := eval.Revoke(r.Context(), vars["id"], ruleID); err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
