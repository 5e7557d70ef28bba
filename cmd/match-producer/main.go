package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/padel-league/internal/domain"
)

func playerID(idx int) string { return fmt.Sprintf("player-%04d", idx) }

func teamID(idx int) string { return fmt.Sprintf("team-%03d", idx) }

// randomSets plays out a best-of-three where side A wins each set with
// probability pA
func randomSets(rng *rand.Rand, pA float64) []domain.SetScore {
	var sets []domain.SetScore
	winsA, winsB := 0, 0
	for winsA < 2 && winsB < 2 {
		loser := rng.Intn(5)
		if rng.Intn(4) == 0 {
			loser = 5 + rng.Intn(2)
		}
		winner := 6
		if loser >= 5 {
			winner = 7
		}
		if rng.Float64() < pA {
			sets = append(sets, domain.SetScore{A: winner, B: loser})
			winsA++
		} else {
			sets = append(sets, domain.SetScore{A: loser, B: winner})
			winsB++
		}
	}
	return sets
}

func randomMatch(rng *rand.Rand, players, teams int, leagueShare float64) domain.MatchSubmission {
	sub := domain.MatchSubmission{ID: uuid.NewString()}

	if teams >= 2 && rng.Float64() < leagueShare {
		a := rng.Intn(teams)
		b := (a + 1 + rng.Intn(teams-1)) % teams
		sub.Type = domain.MatchTypeLeague
		sub.TeamAID, sub.TeamBID = teamID(a), teamID(b)
		// Lower team numbers are stronger so the board spreads out
		sub.Sets = randomSets(rng, 0.5+float64(b-a)/float64(4*teams))
		return sub
	}

	picked := rng.Perm(players)[:4]
	sub.Type = domain.MatchTypeRanked
	if rng.Intn(5) == 0 {
		sub.Type = domain.MatchTypeSparring
	}
	sub.SideA = []string{playerID(picked[0]), playerID(picked[1])}
	sub.SideB = []string{playerID(picked[2]), playerID(picked[3])}
	sub.ReportedBy = sub.SideA[0]
	sub.Sets = randomSets(rng, 0.5)
	return sub
}

// seed creates the players and teams the generated matches refer to.
// Existing ids come back as 409 and are skipped.
func seed(api string, players, teams int) error {
	client := &http.Client{Timeout: 10 * time.Second}
	post := func(path string, body interface{}) error {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		resp, err := client.Post(api+path, "application/json", bytes.NewReader(data))
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
			return fmt.Errorf("POST %s: %s", path, resp.Status)
		}
		return nil
	}

	for i := 0; i < players; i++ {
		req := domain.CreatePlayerRequest{ID: playerID(i), Name: fmt.Sprintf("Player %d", i), MMR: 2.5 + float64(i%30)/10}
		if err := post("/api/v1/players", req); err != nil {
			return err
		}
	}
	for i := 0; i < teams; i++ {
		req := domain.CreateTeamRequest{
			ID:        teamID(i),
			Name:      fmt.Sprintf("Team %d", i),
			CaptainID: playerID(2 * i),
			PartnerID: playerID(2*i + 1),
		}
		if err := post("/api/v1/teams", req); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "padel-matches", "Kafka topic")
	players := flag.Int("players", 200, "Number of players to draw from")
	teams := flag.Int("teams", 40, "Number of teams to draw from (must not exceed players/2)")
	leagueShare := flag.Float64("league-share", 0.4, "Fraction of generated matches that are league matches")
	rate := flag.Int("rate", 20, "Matches per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	seedAPI := flag.String("seed-api", "", "Create players and teams through this API base URL first, e.g. http://localhost:8080")
	flag.Parse()

	if *players < 4 || *teams*2 > *players || *rate <= 0 {
		log.Fatalf("need at least 4 players, teams <= players/2 and a positive rate")
	}

	fmt.Println("padel match producer")
	fmt.Printf("  brokers:      %s\n", *brokers)
	fmt.Printf("  topic:        %s\n", *topic)
	fmt.Printf("  players:      %d\n", *players)
	fmt.Printf("  teams:        %d\n", *teams)
	fmt.Printf("  matches/sec:  %d\n", *rate)
	fmt.Println()

	if *seedAPI != "" {
		fmt.Printf("Seeding %d players and %d teams via %s...\n", *players, *teams, *seedAPI)
		if err := seed(strings.TrimRight(*seedAPI, "/"), *players, *teams); err != nil {
			log.Fatalf("Failed to seed: %v", err)
		}
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(strings.Split(*brokers, ","), config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount, sentCount int64
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	shutdown := func(reason string) {
		fmt.Printf("\n%s\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("Completed. Sent: %d, Acked: %d, Errors: %d\n",
			atomic.LoadInt64(&sentCount), atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	fmt.Println("Press Ctrl+C to stop")

	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return
		case <-deadline:
			shutdown("Duration reached, shutting down...")
			return

		case <-ticker.C:
			sub := randomMatch(rng, *players, *teams, *leagueShare)
			data, err := json.Marshal(sub)
			if err != nil {
				log.Printf("Failed to marshal match: %v", err)
				continue
			}
			// Keyed by match id so redeliveries land on one partition
			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(sub.ID),
				Value: sarama.ByteEncoder(data),
			}
			atomic.AddInt64(&sentCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Sent: %d | Acked: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&sentCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
