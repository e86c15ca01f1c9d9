package rbac

import (
	"net/http"
	"net/http/httptest"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/prasetya/cms-auth/internal"
)

var _ = ginkgo.Describe("Authorization middleware", func() {
	var (
		authz *Authorization
		store *mockStore
		next  http.Handler
	)

	ginkgo.BeforeEach(func() {
		store = newMockStore()
		authz = NewAuthorization(NewResolver(store, nil), nil)
		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	serveAs := func(mw func(http.Handler) http.Handler, user *internal.SessionUser) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
		if user != nil {
			req = req.WithContext(internal.ContextWithUser(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		mw(next).ServeHTTP(rec, req)
		return rec
	}

	ginkgo.Describe("Require", func() {
		ginkgo.It("should allow a user whose snapshot holds the permission", func() {
			user := &internal.SessionUser{ID: 1, Permissions: []string{"edit_post"}}
			rec := serveAs(authz.Require("edit_post"), user)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should return 403 when the snapshot lacks the permission", func() {
			user := &internal.SessionUser{ID: 1, Permissions: []string{"edit_post"}}
			rec := serveAs(authz.Require("manage_users"), user)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
		})

		ginkgo.It("should return 401 without a session user", func() {
			rec := serveAs(authz.Require("edit_post"), nil)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.Describe("RequireAny", func() {
		ginkgo.It("should allow when any listed permission is held", func() {
			user := &internal.SessionUser{ID: 1, Permissions: []string{"edit_post"}}
			rec := serveAs(authz.RequireAny("manage_users", "edit_post"), user)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})
	})

	ginkgo.Describe("RequireAdmin", func() {
		ginkgo.It("should key off the admin permission", func() {
			admin := &internal.SessionUser{ID: 1, Permissions: []string{"admin"}}
			editor := &internal.SessionUser{ID: 2, Permissions: []string{"edit_post"}}

			gomega.Expect(serveAs(authz.RequireAdmin(), admin).Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(serveAs(authz.RequireAdmin(), editor).Code).To(gomega.Equal(http.StatusForbidden))
		})
	})

	ginkgo.Describe("RequireFresh", func() {
		ginkgo.It("should consult the store, not the token snapshot", func() {
			// Given a snapshot claiming a permission the store no longer grants
			user := &internal.SessionUser{ID: 2, Permissions: []string{"manage_users"}}

			// When
			rec := serveAs(authz.RequireFresh("manage_users"), user)

			// Then
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
		})

		ginkgo.It("should allow a permission the store still grants", func() {
			// Given user 1 holds create_post through its role even if the
			// snapshot is empty
			user := &internal.SessionUser{ID: 1}

			// When
			rec := serveAs(authz.RequireFresh("create_post"), user)

			// Then
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})
	})
})
