package sqlinline

// QEnsurePromptSubmissions creates the audit table on startup. Image bytes and
// generated prompt text are never stored.
const QEnsurePromptSubmissions = `--sql 6c1f4a2e-93b7-4d0a-8e25-1b7f3c9d5a40
create table if not exists prompt_submissions (
    id uuid primary key,
    prompt_type text not null default '',
    locale text not null default '',
    status text not null,
    provider_status int,
    file_id text,
    image_bytes bigint not null default 0,
    media_type text not null default '',
    duration_ms int not null,
    settled_at timestamptz not null
);
create index if not exists prompt_submissions_settled_at_idx on prompt_submissions (settled_at desc);
`

const QInsertPromptSubmission = `--sql 2d8e7b51-0c4f-4a96-b3e1-7a5c6f0e9d12
insert into prompt_submissions (id, prompt_type, locale, status, provider_status, file_id, image_bytes, media_type, duration_ms, settled_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::int, $6::text, $7::bigint, $8::text, $9::int, $10::timestamptz)
on conflict (id) do nothing;
`

const QSubmissionStatsSince = `--sql 9a4b0e37-5f62-4c18-a7d9-e3b2c1f08a65
select count(*)::bigint,
       count(*) filter (where status = 'succeeded')::bigint,
       coalesce(avg(duration_ms) filter (where status = 'succeeded'), 0)::float8
from prompt_submissions
where settled_at >= $1::timestamptz;
`
