package db

const migrationCampaigns = `
CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    batch_size INTEGER NOT NULL,
    status TEXT NOT NULL,
    schedule_type TEXT NOT NULL,
    schedule JSON,
    scheduled_at TIMESTAMP,
    sent_at TIMESTAMP,
    completed_at TIMESTAMP,
    anchor_at TIMESTAMP,
    last_run_at TIMESTAMP,
    occurrence_count INTEGER DEFAULT 0,
    show_work_auth INTEGER DEFAULT 0,
    auto_lock_enabled INTEGER DEFAULT 1,
    locked_at TIMESTAMP,
    locked_by TEXT,
    subject_template TEXT,
    email_content TEXT,
    created_by TEXT,
    updated_by TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationCampaignCandidates = `
CREATE TABLE IF NOT EXISTS campaign_candidates (
    id TEXT PRIMARY KEY,
    campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
    candidate_ref TEXT NOT NULL,
    position_in_batch INTEGER NOT NULL,
    include_work_auth INTEGER DEFAULT 0,
    status TEXT NOT NULL,
    vendor_email TEXT,
    vendor_response TEXT,
    rejection_reason TEXT,
    sent_at TIMESTAMP,
    responded_at TIMESTAMP,
    interview_at TIMESTAMP,
    placed_at TIMESTAMP,
    attempts INTEGER DEFAULT 0,
    last_error TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(campaign_id, candidate_ref)
);
`

// analytics_events carries no foreign keys: events are historical
// facts and must survive candidate deletion.
const migrationAnalyticsEvents = `
CREATE TABLE IF NOT EXISTS analytics_events (
    id TEXT PRIMARY KEY,
    campaign_id TEXT NOT NULL,
    campaign_candidate_id TEXT,
    event_type TEXT NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    response_time_hours REAL,
    conversion_value REAL,
    metadata JSON,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationCandidates = `
CREATE TABLE IF NOT EXISTS candidates (
    ref TEXT PRIMARY KEY,
    first_name TEXT,
    last_name TEXT,
    email TEXT,
    title TEXT,
    skills JSON,
    hourly_rate REAL,
    availability TEXT,
    work_authorization TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationIndexes = `
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_campaigns_scheduled_at ON campaigns(scheduled_at);
CREATE INDEX IF NOT EXISTS idx_campaign_candidates_campaign ON campaign_candidates(campaign_id, position_in_batch);
CREATE INDEX IF NOT EXISTS idx_analytics_events_campaign ON analytics_events(campaign_id, event_timestamp);
CREATE INDEX IF NOT EXISTS idx_analytics_events_candidate ON analytics_events(campaign_candidate_id, event_timestamp);
`
