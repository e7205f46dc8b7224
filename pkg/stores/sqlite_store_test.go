package stores

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return store
}

func seedDeployment(t *testing.T, store *SQLiteStore, id string) *Deployment {
	t.Helper()
	ctx := context.Background()

	client := &Client{ID: "client-" + id, Name: "Acme"}
	if err := store.CreateClient(ctx, client); err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	agent := &Agent{ID: "agent-" + id, Name: "Support Bot", Template: `{"nodes":[]}`}
	if err := store.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	d := &Deployment{
		ID:       id,
		ClientID: client.ID,
		AgentID:  agent.ID,
		Status:   DeploymentStatusPending,
	}
	if err := store.CreateDeployment(ctx, d); err != nil {
		t.Fatalf("CreateDeployment failed: %v", err)
	}
	return d
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Second Migrate failed: %v", err)
	}
}

func TestClientRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := &Client{ID: "c1", Name: "Acme", ContactEmail: "ops@acme.example"}
	if err := store.CreateClient(ctx, in); err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}

	out, err := store.GetClient(ctx, "c1")
	if err != nil {
		t.Fatalf("GetClient failed: %v", err)
	}
	if out.Name != "Acme" || out.ContactEmail != "ops@acme.example" {
		t.Errorf("Round trip mismatch: %+v", out)
	}

	if _, err := store.GetClient(ctx, "missing"); err == nil {
		t.Error("Expected not-found error")
	} else if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not-found wording, got %v", err)
	}

	clients, err := store.ListClients(ctx)
	if err != nil {
		t.Fatalf("ListClients failed: %v", err)
	}
	if len(clients) != 1 {
		t.Errorf("Expected 1 client, got %d", len(clients))
	}
}

func TestAgentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	template := `{"nodes":[{"name":"n1"}]}`
	in := &Agent{ID: "a1", Name: "Bot", Description: "support agent", Template: template}
	if err := store.CreateAgent(ctx, in); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	out, err := store.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if out.Template != template || out.Description != "support agent" {
		t.Errorf("Round trip mismatch: %+v", out)
	}
}

func TestDeploymentLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	d := seedDeployment(t, store, "d1")

	out, err := store.GetDeployment(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDeployment failed: %v", err)
	}
	if out.Status != DeploymentStatusPending || out.CredentialIDs != "[]" {
		t.Errorf("Unexpected initial record: %+v", out)
	}

	wfID, wfURL := "wf-1", "https://backend.example.com/workflow/wf-1"
	if err := store.UpdateDeploymentStatus(ctx, d.ID, DeploymentStatusActive, &wfID, &wfURL, nil); err != nil {
		t.Fatalf("UpdateDeploymentStatus failed: %v", err)
	}
	if err := store.SetDeploymentCredentials(ctx, d.ID, `["cred-1","cred-2"]`); err != nil {
		t.Fatalf("SetDeploymentCredentials failed: %v", err)
	}

	out, err = store.GetDeployment(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDeployment failed: %v", err)
	}
	if out.Status != DeploymentStatusActive {
		t.Errorf("Expected active, got %s", out.Status)
	}
	if out.WorkflowID == nil || *out.WorkflowID != "wf-1" {
		t.Errorf("Expected workflow ID persisted, got %v", out.WorkflowID)
	}
	if out.CredentialIDs != `["cred-1","cred-2"]` {
		t.Errorf("Expected credential IDs persisted, got %s", out.CredentialIDs)
	}

	// A later failure update must not wipe the workflow fields.
	errMsg := "activation lost"
	if err := store.UpdateDeploymentStatus(ctx, d.ID, DeploymentStatusFailed, nil, nil, &errMsg); err != nil {
		t.Fatalf("UpdateDeploymentStatus failed: %v", err)
	}
	out, _ = store.GetDeployment(ctx, d.ID)
	if out.WorkflowID == nil || *out.WorkflowID != "wf-1" {
		t.Error("Expected nil workflow ID to leave the stored value untouched")
	}
	if out.Error == nil || *out.Error != "activation lost" {
		t.Errorf("Expected error persisted, got %v", out.Error)
	}

	if err := store.UpdateDeploymentStatus(ctx, "missing", DeploymentStatusFailed, nil, nil, nil); err == nil {
		t.Error("Expected not-found error for unknown deployment")
	}
}

func TestListDeploymentsLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_ = seedDeployment(t, store, "d1")
	_ = seedDeployment(t, store, "d2")

	list, err := store.ListDeployments(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListDeployments failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 deployments, got %d", len(list))
	}

	limited, err := store.ListDeployments(ctx, 1, 0)
	if err != nil {
		t.Fatalf("ListDeployments failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected limit respected, got %d", len(limited))
	}
}

func TestHealthCheckHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	d := seedDeployment(t, store, "d1")

	for i := 0; i < 3; i++ {
		r := &HealthCheckRecord{
			ID:               "hc-" + string(rune('a'+i)),
			DeploymentID:     d.ID,
			Healthy:          i%2 == 0,
			WorkflowActive:   true,
			SuccessRate:      90,
			RecentExecutions: 10,
			LatencyMs:        int64(i),
			CheckedAt:        time.Now().Add(time.Duration(i) * time.Minute),
		}
		if err := store.SaveHealthCheck(ctx, r); err != nil {
			t.Fatalf("SaveHealthCheck failed: %v", err)
		}
	}

	records, err := store.ListHealthChecks(ctx, d.ID, 2)
	if err != nil {
		t.Fatalf("ListHealthChecks failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected limit 2, got %d", len(records))
	}
	if records[0].CheckedAt.Before(records[1].CheckedAt) {
		t.Error("Expected newest first")
	}
}

func TestAlertsSaveListAcknowledge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	d := seedDeployment(t, store, "d1")

	alerts := []*AlertRecord{
		{ID: "al-1", DeploymentID: d.ID, ClientID: d.ClientID, AgentID: d.AgentID,
			Severity: "critical", Type: "connection_lost", Message: "backend gone"},
		{ID: "al-2", DeploymentID: d.ID, ClientID: d.ClientID, AgentID: d.AgentID,
			Severity: "warning", Type: "workflow_inactive", Message: "inactive"},
	}
	if err := store.SaveAlerts(ctx, alerts); err != nil {
		t.Fatalf("SaveAlerts failed: %v", err)
	}

	got, err := store.ListAlerts(ctx, d.ID, false)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 alerts, got %d", len(got))
	}

	if err := store.AcknowledgeAlert(ctx, "al-1"); err != nil {
		t.Fatalf("AcknowledgeAlert failed: %v", err)
	}
	unacked, err := store.ListAlerts(ctx, d.ID, true)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(unacked) != 1 || unacked[0].ID != "al-2" {
		t.Errorf("Expected only al-2 unacknowledged, got %v", unacked)
	}

	// Empty deployment ID lists across deployments.
	all, err := store.ListAlerts(ctx, "", false)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 alerts across deployments, got %d", len(all))
	}

	if err := store.AcknowledgeAlert(ctx, "missing"); err == nil {
		t.Error("Expected not-found error")
	}
}

func TestActivityLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	d := seedDeployment(t, store, "d1")

	if err := store.AppendActivity(ctx, &ActivityEntry{
		ID: "act-1", DeploymentID: &d.ID, Level: "info", Message: "deployment started",
	}); err != nil {
		t.Fatalf("AppendActivity failed: %v", err)
	}
	// Entries without a deployment are allowed.
	if err := store.AppendActivity(ctx, &ActivityEntry{
		ID: "act-2", Level: "info", Message: "server started",
	}); err != nil {
		t.Fatalf("AppendActivity failed: %v", err)
	}

	entries, err := store.ListActivity(ctx, 10)
	if err != nil {
		t.Fatalf("ListActivity failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
}

func TestSaveAlertsEmptyBatch(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveAlerts(context.Background(), nil); err != nil {
		t.Errorf("Expected empty batch to be a no-op, got %v", err)
	}
}
