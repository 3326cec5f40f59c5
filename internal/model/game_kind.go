package model

// GameKind identifies which game a room is played with
type GameKind string

const (
	GameRockPaperScissors GameKind = "rps"
	GameTicTacToe         GameKind = "tictactoe"
	GameChess             GameKind = "chess"
	GameCheckers          GameKind = "checkers"
	GameDurak             GameKind = "durak"
)

// Discipline is the move-submission protocol a game kind uses
type Discipline string

const (
	DisciplineDirect       Discipline = "direct"        // moves are public as soon as they are made
	DisciplineCommitReveal Discipline = "commit_reveal" // simultaneous hidden choices
)

// Discipline returns the move-submission protocol for the game kind
func (k GameKind) Discipline() Discipline {
	if k == GameRockPaperScissors {
		return DisciplineCommitReveal
	}
	return DisciplineDirect
}

// Valid reports whether the game kind is supported
func (k GameKind) Valid() bool {
	switch k {
	case GameRockPaperScissors, GameTicTacToe, GameChess, GameCheckers, GameDurak:
		return true
	}
	return false
}

// SupportedGameKinds lists every game kind rooms can be created with
func SupportedGameKinds() []GameKind {
	return []GameKind{GameRockPaperScissors, GameTicTacToe, GameChess, GameCheckers, GameDurak}
}

// RPSMove is a rock-paper-scissors choice
type RPSMove string

const (
	RPSRock     RPSMove = "rock"
	RPSPaper    RPSMove = "paper"
	RPSScissors RPSMove = "scissors"
)

// Valid reports whether the move is one of the three choices
func (m RPSMove) Valid() bool {
	return m == RPSRock || m == RPSPaper || m == RPSScissors
}

// Beats reports whether m wins against other
func (m RPSMove) Beats(other RPSMove) bool {
	switch m {
	case RPSRock:
		return other == RPSScissors
	case RPSScissors:
		return other == RPSPaper
	case RPSPaper:
		return other == RPSRock
	}
	return false
}
