package catalog

import "fmt"

// nextSongPage marks actual plays in the event stream; every other page value
// is a navigation or account interaction.
const nextSongPage = "NextSong"

func insertSongplays(d Dialect) string {
	return fmt.Sprintf(`INSERT INTO %s (
    start_time,
    user_id,
    level,
    song_id,
    artist_id,
    session_id,
    location,
    user_agent
)
SELECT %s AS start_time,
    events.userId AS user_id,
    events.level AS level,
    songs.song_id AS song_id,
    songs.artist_id AS artist_id,
    events.sessionId AS session_id,
    events.location AS location,
    events.userAgent AS user_agent
FROM %s AS events
JOIN %s AS songs
    ON events.artist = songs.artist_name
    AND events.song = songs.title
    AND events.length = songs.duration
WHERE events.page = %s`,
		TableSongplays,
		d.epochMillis("events.ts"),
		TableStagingEvents,
		TableStagingSongs,
		quote(nextSongPage),
	)
}

// insertUsers keeps one row per user: the attributes of their most recent
// play, so a level change between free and paid does not yield two rows.
func insertUsers() string {
	return fmt.Sprintf(`INSERT INTO %s (
    user_id,
    first_name,
    last_name,
    gender,
    level
)
SELECT user_id,
    first_name,
    last_name,
    gender,
    level
FROM (
    SELECT userId AS user_id,
        firstName AS first_name,
        lastName AS last_name,
        gender,
        level,
        ROW_NUMBER() OVER (PARTITION BY userId ORDER BY ts DESC) AS recency
    FROM %s
    WHERE page = %s
        AND userId IS NOT NULL
) AS latest
WHERE recency = 1`,
		TableUsers,
		TableStagingEvents,
		quote(nextSongPage),
	)
}

// insertSongs is a plain DISTINCT: two song records sharing a song_id but
// differing in any attribute both survive, and the duplicate-key check flags them.
func insertSongs() string {
	return fmt.Sprintf(`INSERT INTO %s (
    song_id,
    title,
    artist_id,
    year,
    duration
)
SELECT DISTINCT song_id,
    title,
    artist_id,
    year,
    duration
FROM %s`,
		TableSongs,
		TableStagingSongs,
	)
}

// insertArtists keeps one row per artist, preferring a record that carries a
// location.
func insertArtists() string {
	return fmt.Sprintf(`INSERT INTO %s (
    artist_id,
    name,
    location,
    latitude,
    longitude
)
SELECT artist_id,
    name,
    location,
    latitude,
    longitude
FROM (
    SELECT artist_id,
        artist_name AS name,
        artist_location AS location,
        artist_latitude AS latitude,
        artist_longitude AS longitude,
        ROW_NUMBER() OVER (
            PARTITION BY artist_id
            ORDER BY CASE WHEN artist_location IS NULL OR artist_location = '' THEN 1 ELSE 0 END,
                artist_name,
                song_id
        ) AS pick
    FROM %s
    WHERE artist_id IS NOT NULL
) AS candidates
WHERE pick = 1`,
		TableArtists,
		TableStagingSongs,
	)
}

func insertTime(d Dialect) string {
	return fmt.Sprintf(`INSERT INTO %s (
    start_time,
    hour,
    day,
    week,
    month,
    year,
    weekday
)
SELECT DISTINCT sp.start_time,
    EXTRACT(HOUR FROM sp.start_time),
    EXTRACT(DAY FROM sp.start_time),
    EXTRACT(WEEK FROM sp.start_time),
    EXTRACT(MONTH FROM sp.start_time),
    EXTRACT(YEAR FROM sp.start_time),
    EXTRACT(%s FROM sp.start_time)
FROM %s AS sp`,
		TableTime,
		d.weekdayField(),
		TableSongplays,
	)
}
